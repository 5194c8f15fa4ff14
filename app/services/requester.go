package services

import "github.com/shashiranjanraj/kashvi-shop/app/models"

// Requester is the authenticated caller of a service operation. Handlers
// build it from the JWT claims and pass it in explicitly.
type Requester struct {
	UserID uint
	Role   models.Role
}

// NewRequester builds a Requester from raw claim values. Unknown roles are
// treated as customers.
func NewRequester(userID uint, role string) Requester {
	r := models.Role(role)
	if r != models.RoleStaff {
		r = models.RoleCustomer
	}
	return Requester{UserID: userID, Role: r}
}

// Authenticated reports whether the requester carries an identity.
func (r Requester) Authenticated() bool { return r.UserID != 0 }

// CanViewAllOrders is granted to staff.
func (r Requester) CanViewAllOrders() bool { return r.Role == models.RoleStaff }

// CanManageOrders allows status changes.
func (r Requester) CanManageOrders() bool { return r.Role == models.RoleStaff }

// CanManageCatalog allows product, variant and stock edits.
func (r Requester) CanManageCatalog() bool { return r.Role == models.RoleStaff }
