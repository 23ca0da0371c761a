// Package auth integrates Clerk session authentication for the admin API.
package auth

import (
	"net/http"

	"github.com/kalmarr/matrixcbs/internal/model"
)

type AuthProvider interface {
	WithHeaderAuthorization() func(http.Handler) http.Handler

	GetUserIDFromSession(r *http.Request) (model.UserID, error)

	// EnforceUser rejects the request with a 401 when no valid session is
	// present and returns the authenticated user id otherwise.
	EnforceUser(w http.ResponseWriter, r *http.Request) (model.UserID, error)

	HandleWebhookUser(w http.ResponseWriter, r *http.Request)
}
