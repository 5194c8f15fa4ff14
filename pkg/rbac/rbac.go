// Package rbac gates routes on the role carried in the JWT claims. Both
// guards read what AuthMiddleware or OptionalAuth stored in the context,
// so one of those must run first.
package rbac

import (
	"net/http"
	"strings"

	"github.com/shashiranjanraj/kashvi-shop/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

// HasRole lets a request through when its role is one of roles.
// Unauthenticated requests get 401, other roles 403.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := middleware.RoleFromCtx(r)
			switch {
			case !ok:
				response.Unauthorized(w)
			case !contains(roles, role):
				response.Fail(w, http.StatusForbidden, "forbidden", "Requires role "+strings.Join(roles, " or "))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Guest only admits anonymous requests: login and register.
func Guest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.UserIDFromCtx(r); ok {
			response.Fail(w, http.StatusConflict, "already_authenticated", "Already authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func contains(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
