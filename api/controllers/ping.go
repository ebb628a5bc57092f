package controllers

import (
	"net/http"

	"github.com/angelmondragon/foodrescue-backend/api/middleware"
	"github.com/angelmondragon/foodrescue-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the identity the token resolved to.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":   "private",
			"status":  "ok",
			"user_id": middleware.UserIDFromContext(r.Context()),
			"role":    middleware.RoleFromContext(r.Context()),
		})
	}
}
