// Package graphql serves a graphql-go schema over HTTP.
package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

const maxQueryBytes = 64 << 10

// NewSchema creates a schema from a root query and an optional mutation.
func NewSchema(query, mutation *graphql.Object) (graphql.Schema, error) {
	cfg := graphql.SchemaConfig{Query: query}
	if mutation != nil {
		cfg.Mutation = mutation
	}
	return graphql.NewSchema(cfg)
}

// Request is the standard GraphQL-over-HTTP body.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Handler executes POSTed queries against schema. The request context is
// passed to resolvers so they can read the caller's claims.
func Handler(schema graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			response.Fail(w, http.StatusBadRequest, "bad_request", "Body must be JSON with a query field")
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        r.Context(),
		})
		if result.HasErrors() {
			logger.WithCtx(r.Context()).Debug("graphql errors", "errors", result.Errors)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithCtx(r.Context()).Error("graphql: encode result", "error", err)
		}
	}
}
