// Package editor exposes the draft/autosave HTTP API consumed by the admin
// editing UI.
package editor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/config"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/repository/draft"
	"github.com/rs/zerolog"
)

type Handler struct {
	registry *autosave.Registry
	store    autosave.Store
}

func NewHandler(registry *autosave.Registry, store autosave.Store) *Handler {
	return &Handler{
		registry: registry,
		store:    store,
	}
}

// documentPayload is the editor's wire form of a draft snapshot.
type documentPayload struct {
	Title   string        `json:"title"`
	Body    string        `json:"body"`
	Excerpt string        `json:"excerpt"`
	PostID  *model.PostID `json:"post_id,omitempty"`
}

func (p documentPayload) snapshot() autosave.Snapshot {
	return autosave.Snapshot{
		Title:   p.Title,
		Body:    p.Body,
		Excerpt: p.Excerpt,
		PostID:  p.PostID,
	}
}

// ServeOpenSession starts an editing session. Editing an existing post keys
// the draft by post id; a new document gets a fresh UUID key. The key is
// echoed in a cookie so a reopened editor finds its draft again.
func (h *Handler) ServeOpenSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PostID *model.PostID `json:"post_id,omitempty"`
	}
	if r.Body != nil {
		// An empty body means a brand-new document.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	var key model.DraftKey
	if payload.PostID != nil {
		key = model.DraftKey(payload.PostID.String())
	} else if cookie, err := r.Cookie(config.CookieDraftKey); err == nil && cookie.Value != "" {
		key = model.DraftKey(cookie.Value)
	} else {
		key = model.DraftKey(uuid.New().String())
	}

	h.registry.Get(key)

	http.SetCookie(w, &http.Cookie{
		Name:  config.CookieDraftKey,
		Value: string(key),
		Path:  "/",
	})

	writeJSON(w, http.StatusOK, map[string]string{"key": string(key)})
}

// ServeObserve records one document mutation for the session's coordinator.
// It returns immediately; persistence happens on the coordinator's timers.
func (h *Handler) ServeObserve(w http.ResponseWriter, r *http.Request) {
	key := model.DraftKey(r.PathValue("key"))
	if key == "" {
		http.NotFound(w, r)
		return
	}

	var payload documentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid document payload", http.StatusBadRequest)
		return
	}

	c := h.registry.Get(key)
	c.Observe(payload.snapshot())

	writeJSON(w, http.StatusAccepted, c.Status())
}

// ServeSaveNow is the explicit user-triggered save.
func (h *Handler) ServeSaveNow(w http.ResponseWriter, r *http.Request) {
	key := model.DraftKey(r.PathValue("key"))
	c, ok := h.registry.Lookup(key)
	if !ok {
		http.Error(w, config.ErrDraftNotFound, http.StatusNotFound)
		return
	}

	c.SaveNow(r.Context())

	writeJSON(w, http.StatusOK, c.Status())
}

// ServeStatus reports the tri-state autosave indicator data.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	key := model.DraftKey(r.PathValue("key"))
	c, ok := h.registry.Lookup(key)
	if !ok {
		http.Error(w, config.ErrDraftNotFound, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, c.Status())
}

// ServeGetDraft returns the stored draft, e.g. to restore a reopened editor.
func (h *Handler) ServeGetDraft(w http.ResponseWriter, r *http.Request) {
	key := model.DraftKey(r.PathValue("key"))
	d, err := h.store.GetDraft(r.Context(), key)
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			http.Error(w, config.ErrDraftNotFound, http.StatusNotFound)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error reading draft")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// ServeDiscard deletes the draft and resets the session. Discarding a draft
// that was never saved is reported as not found.
func (h *Handler) ServeDiscard(w http.ResponseWriter, r *http.Request) {
	key := model.DraftKey(r.PathValue("key"))

	var err error
	if c, ok := h.registry.Lookup(key); ok {
		err = c.Clear(r.Context())
		h.registry.Close(key)
	} else {
		err = h.store.DeleteDraft(r.Context(), key)
	}

	if errors.Is(err, draft.ErrNotFound) {
		http.Error(w, config.ErrDraftNotFound, http.StatusNotFound)
		return
	} else if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error discarding draft")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   config.CookieDraftKey,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	w.WriteHeader(http.StatusNoContent)
}

// CloseSession tears down the coordinator for a key after a post is
// finalized, dropping its draft.
func (h *Handler) CloseSession(r *http.Request, key model.DraftKey) {
	if c, ok := h.registry.Lookup(key); ok {
		_ = c.Clear(r.Context())
		h.registry.Close(key)
	} else {
		_ = h.store.DeleteDraft(r.Context(), key)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
