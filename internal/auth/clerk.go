package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/rs/zerolog"
)

var authLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

type ClerkAuthProvider struct {
	db db.DB

	cookieExtractor clerkhttp.AuthorizationOption
}

func NewClerkAuthProvider(database db.DB, clerkKey string) *ClerkAuthProvider {
	clerk.SetKey(clerkKey)

	return &ClerkAuthProvider{
		db: database,
		cookieExtractor: clerkhttp.AuthorizationJWTExtractor(func(r *http.Request) string {
			cookie, err := r.Cookie("__session")
			if err != nil || cookie == nil {
				return ""
			}
			return cookie.Value
		}),
	}
}

func (c *ClerkAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return clerkhttp.WithHeaderAuthorization(c.cookieExtractor)
}

func (c *ClerkAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	claims, ok := clerk.SessionClaimsFromContext(r.Context())
	if !ok {
		return "", errors.New("failed to get session claims from context")
	}

	usr, err := clerkuser.Get(r.Context(), claims.Subject)
	if err != nil {
		return "", err
	}

	return model.UserID(usr.ID), nil
}

func (c *ClerkAuthProvider) EnforceUser(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	userID, err := c.GetUserIDFromSession(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", err
	}
	return userID, nil
}

// HandleWebhookUser mirrors Clerk's user lifecycle into the local users table
// so posts can reference their author without a Clerk round trip.
func (c *ClerkAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	type EventPayload struct {
		Data struct {
			clerk.User
		} `json:"data"`

		Type string `json:"type"`
	}

	var payload EventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		authLogger.Error().Err(err).Msg("Error decoding user webhook payload")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	usr := payload.Data.User

	switch payload.Type {
	case "user.created":
		var name string
		if usr.Username != nil {
			name = *usr.Username
		} else if len(usr.EmailAddresses) > 0 {
			name = usr.EmailAddresses[0].EmailAddress
		}
		if name == "" {
			authLogger.Warn().Str("user_id", usr.ID).Msg("User webhook without username or email")
			http.Error(w, "No usable identity found", http.StatusBadRequest)
			return
		}

		_, err := c.db.Exec("INSERT INTO users (id, username) VALUES (?, ?)", usr.ID, name)
		if err != nil {
			authLogger.Error().Err(err).Str("user_id", usr.ID).Msg("Error inserting user")
			http.Error(w, "Error saving user", http.StatusInternalServerError)
			return
		}

		authLogger.Info().Str("user_id", usr.ID).Msg("User created")
		w.WriteHeader(http.StatusCreated)

	case "user.updated":
		if usr.Username != nil {
			if _, err := c.db.Exec("UPDATE users SET username = ? WHERE id = ?", *usr.Username, usr.ID); err != nil {
				authLogger.Error().Err(err).Str("user_id", usr.ID).Msg("Error updating user")
				http.Error(w, "Error updating user", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case "user.deleted":
		_, err := c.db.Exec("DELETE FROM users WHERE id = ?", usr.ID)
		if err != nil {
			authLogger.Error().Err(err).Str("user_id", usr.ID).Msg("Error deleting user")
			http.Error(w, "Error deleting user", http.StatusInternalServerError)
			return
		}

		authLogger.Info().Str("user_id", usr.ID).Msg("User deleted")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
	}
}
