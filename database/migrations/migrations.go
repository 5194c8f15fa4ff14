// Package migrations holds the schema migrations. Importing it registers
// them with pkg/migration; cmd/kshop and the test database helper do so.
package migrations
