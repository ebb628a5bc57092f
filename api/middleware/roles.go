package middleware

import (
	"net/http"

	"github.com/angelmondragon/foodrescue-backend/api/responses"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

// RequireRole only lets through requests whose token carries one of the roles.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actual := RoleFromContext(r.Context())
			for _, role := range roles {
				if actual == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "required_roles", roles), "role.denied")
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
		})
	}
}
