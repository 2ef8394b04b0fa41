package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/vendor-payouts/api/responses"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

// RequireRole lets through only callers whose token role is in roles.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, enums.Role(RoleFromContext(r.Context()))) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for payouts"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
