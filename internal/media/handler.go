package media

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kalmarr/matrixcbs/internal/config"
	"github.com/rs/zerolog"
)

// allowedExtensions are the upload types the editor may attach to a post.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".pdf":  true,
}

type Handler struct {
	storage  Storage
	maxBytes int64
}

func NewHandler(storage Storage, maxSizeMB int) *Handler {
	return &Handler{
		storage:  storage,
		maxBytes: int64(maxSizeMB) << 20,
	}
}

// ServeUpload accepts a multipart upload and stores it under a fresh UUID
// name, keeping the original extension for content-type sniffing.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	if !allowedExtensions[ext] {
		http.Error(w, "Unsupported file type", http.StatusUnsupportedMediaType)
		return
	}

	name := uuid.New().String() + ext
	if err := h.storage.Save(r.Context(), name, file); err != nil {
		l.Error().Err(err).Str("name", name).Msg("Error storing upload")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	l.Info().Str("name", name).Str("original", header.Filename).Msg("Stored upload")

	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name": name,
		"url":  config.MediaUrlPath + name,
	})
}

// ServeGet streams a stored object back to the client.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	obj, err := h.storage.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("name", name).Msg("Error reading upload")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		w.Header().Set(config.HCType, ctype)
	}
	w.Header().Set(config.HCacheControl, "public, max-age=31536000, immutable")
	_, _ = io.Copy(w, obj)
}
