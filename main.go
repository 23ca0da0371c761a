package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/kalmarr/matrixcbs/internal/auth"
	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/config"
	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/editor"
	"github.com/kalmarr/matrixcbs/internal/logger"
	"github.com/kalmarr/matrixcbs/internal/maintenance"
	"github.com/kalmarr/matrixcbs/internal/media"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/preview"
	"github.com/kalmarr/matrixcbs/internal/related"
	"github.com/kalmarr/matrixcbs/internal/render"
	"github.com/kalmarr/matrixcbs/internal/repository"
	"github.com/kalmarr/matrixcbs/internal/repository/draft"
	"github.com/kalmarr/matrixcbs/internal/routes"
	"github.com/kalmarr/matrixcbs/internal/sse"
	"github.com/kalmarr/matrixcbs/internal/theme"
	"github.com/kalmarr/matrixcbs/internal/util"
)

var l zerolog.Logger

var Db db.DB

var clients = sse.NewSSEClients()

var postRepository repository.PostRepository
var ranker *related.Ranker

var draftStore autosave.Store
var registry *autosave.Registry
var editorHandler *editor.Handler

var clerkAuthProvider auth.AuthProvider
var gate *maintenance.Gate
var mediaHandler *media.Handler

var previewVerifier *preview.Verifier
var previewSigner *preview.Signer

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	l = logger.New("info")
	config.SetLogger(l)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.LoadConfig(configPath); err != nil {
		l.Fatal().Err(err).Msg("Error loading config")
	}

	l = logger.New(config.AppConfig.Logging.Level)
	setLoggers(l)

	Db = db.NewSQLite(config.AppConfig.Database.Path)
	if err := Db.InitDB(); err != nil {
		l.Fatal().Msgf(config.ErrInitializeDatabaseFmt, err)
	}

	repo := repository.NewDBPostRepository(Db, time.Duration(config.AppConfig.Content.RefreshSeconds)*time.Second)
	postRepository = repo
	ranker = related.NewRanker(repo)

	draftStore = draft.NewDBStore(Db)
	registry = autosave.NewRegistry(draftStore, autosave.Options{
		Debounce: time.Duration(config.AppConfig.Autosave.DebounceSeconds) * time.Second,
		Interval: time.Duration(config.AppConfig.Autosave.IntervalSeconds) * time.Second,
		Enabled:  config.AppConfig.Autosave.Enabled,
	}, broadcastAutosaveStatus)
	defer registry.Shutdown()

	editorHandler = editor.NewHandler(registry, draftStore)

	clerkAuthProvider = auth.NewClerkAuthProvider(Db, os.Getenv("CLERK_API"))
	gate = maintenance.NewGate(config.AppConfig.Maintenance)

	storage := newMediaStorage()
	mediaHandler = media.NewHandler(storage, config.AppConfig.Uploads.MaxSizeMB)

	initPreviewKeys()

	mux := http.NewServeMux()

	mux.HandleFunc(routes.RobotsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /api/admin/"))
	})

	mux.HandleFunc(routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Public content API
	mux.HandleFunc("GET "+routes.APIPosts, servePostList)
	mux.HandleFunc("GET "+routes.APIPostRelated, serveRelated)
	mux.HandleFunc("GET "+routes.APIPost, servePost)
	mux.HandleFunc("GET "+routes.APIPostPreview, servePostPreview)
	mux.HandleFunc("GET "+routes.APICategories, serveCategories)
	mux.HandleFunc("GET "+routes.APITags, serveTags)

	// Syntax highlighting themes
	mux.HandleFunc("POST "+routes.SyntaxThemeSet, serveSyntaxThemePostSet)
	mux.HandleFunc("GET "+routes.SyntaxThemeGet, serveSyntaxThemeGetTheme)

	// Editor sessions, drafts and autosave
	mux.HandleFunc("POST "+routes.EditorSessions, withUser(editorHandler.ServeOpenSession))
	mux.HandleFunc("POST "+routes.Draft, withUser(editorHandler.ServeObserve))
	mux.HandleFunc("POST "+routes.DraftSave, withUser(editorHandler.ServeSaveNow))
	mux.HandleFunc("GET "+routes.Draft, withUser(editorHandler.ServeGetDraft))
	mux.HandleFunc("GET "+routes.DraftStatus, withUser(editorHandler.ServeStatus))
	mux.HandleFunc("DELETE "+routes.Draft, withUser(editorHandler.ServeDiscard))
	mux.HandleFunc("GET "+routes.SSEPath, eventsHandler)

	// Admin API
	mux.HandleFunc("POST "+routes.AdminPosts, withUser(serveCreatePost))
	mux.HandleFunc("PUT "+routes.AdminPost, withUser(serveUpdatePost))
	mux.HandleFunc("POST "+routes.AdminPostPublish, withUser(servePublishPost))
	mux.HandleFunc("POST "+routes.AdminPostPreviewToken, withUser(serveMintPreviewToken))
	mux.HandleFunc(routes.AdminMaintenance, withUser(gate.ServeState))
	mux.HandleFunc("POST "+routes.AdminMedia, withUser(mediaHandler.ServeUpload))

	// Media
	mux.HandleFunc("GET "+routes.MediaPath+"{name}", mediaHandler.ServeGet)

	mux.HandleFunc("POST "+routes.AuthWebhookUser, clerkAuthProvider.HandleWebhookUser)

	postRepository.Init()
	postRepository.SetReloadNotifier(handleReloadPost)

	securedMux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routes.RobotsPath { // Ignore robots.txt
			mux.ServeHTTP(w, r)
		} else {
			secureHeaders(mux.ServeHTTP)(w, r)
		}
	})

	handler := gate.Middleware(clerkAuthProvider.WithHeaderAuthorization()(securedMux))

	addr := config.AppConfig.Server.Host + ":" + config.AppConfig.Server.Port
	l.Info().Str("addr", addr).Msg("Server listening")
	l.Fatal().Err(http.ListenAndServe(addr, handler)).Msg("Server stopped")
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l)
	db.SetLogger(l)
	repository.SetLogger(l)
	draft.SetLogger(l)
	autosave.SetLogger(l)
	render.SetLogger(l)
	auth.SetLogger(l)
	maintenance.SetLogger(l)
	media.SetLogger(l)
}

func newMediaStorage() media.Storage {
	uploads := config.AppConfig.Uploads
	if uploads.Backend == "s3" {
		storage, err := media.NewS3Storage(
			os.Getenv("S3_ACCESS_KEY_ID"),
			os.Getenv("S3_SECRET_ACCESS_KEY"),
			uploads.S3.Endpoint,
			uploads.S3.Bucket,
		)
		if err != nil {
			l.Fatal().Err(err).Msg("Error initializing S3 storage")
		}
		return storage
	}

	storage, err := media.NewFSStorage(uploads.Dir)
	if err != nil {
		l.Fatal().Err(err).Str("dir", uploads.Dir).Msg("Error initializing upload directory")
	}
	return storage
}

func initPreviewKeys() {
	if pubPEM := os.Getenv("PREVIEW_PUBKEY"); pubPEM != "" {
		v, err := preview.NewVerifier([]byte(pubPEM))
		if err != nil {
			l.Fatal().Err(err).Msg("Error loading preview public key")
		}
		previewVerifier = v
	}
	if privPEM := os.Getenv("PREVIEW_PRIVKEY"); privPEM != "" {
		s, err := preview.NewSigner([]byte(privPEM))
		if err != nil {
			l.Fatal().Err(err).Msg("Error loading preview private key")
		}
		previewSigner = s
	}
}

// withUser requires an authenticated session for the wrapped handler.
func withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := clerkAuthProvider.EnforceUser(w, r)
		if err != nil {
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(r.Context(), userID)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serveRelated is the related-posts endpoint. The limit ceiling is enforced
// with a 400, never by silently truncating.
func serveRelated(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("postId")
	if idStr == "" {
		http.Error(w, config.ErrPostIDRequired, http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	limit := config.AppConfig.Content.RelatedDefault
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, config.ErrLimitInvalid, http.StatusBadRequest)
			return
		}
	}

	posts, err := ranker.FindRelated(r.Context(), model.PostID(id), limit)
	if err != nil {
		if errors.Is(err, related.ErrInvalidLimit) {
			http.Error(w, config.ErrLimitInvalid, http.StatusBadRequest)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error ranking related posts")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

// postListItem is the index projection: no body, no owner.
type postListItem struct {
	ID            model.PostID     `json:"id"`
	Title         string           `json:"title"`
	Slug          string           `json:"slug"`
	Excerpt       string           `json:"excerpt,omitempty"`
	FeaturedImage string           `json:"featured_image,omitempty"`
	PublishedAt   *time.Time       `json:"published_at,omitempty"`
	Categories    []model.Category `json:"categories,omitempty"`
	Tags          []model.Tag      `json:"tags,omitempty"`
}

func servePostList(w http.ResponseWriter, r *http.Request) {
	posts := postRepository.GetPostList()

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := config.AppConfig.Content.PostsPerPage
	start := (page - 1) * perPage
	if start > len(posts) {
		start = len(posts)
	}
	end := start + perPage
	if end > len(posts) {
		end = len(posts)
	}

	items := make([]postListItem, 0, end-start)
	for _, p := range posts[start:end] {
		items = append(items, postListItem{
			ID:            p.ID,
			Title:         p.Title,
			Slug:          p.Slug,
			Excerpt:       p.Excerpt,
			FeaturedImage: p.FeaturedImage,
			PublishedAt:   p.PublishedAt,
			Categories:    p.Categories,
			Tags:          p.Tags,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": items,
		"page":  page,
		"total": len(posts),
	})
}

func parsePostID(r *http.Request) (model.PostID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return model.PostID(id), true
}

func servePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(r)
	if !ok {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	post, err := postRepository.ReadPost(id)
	if err != nil || !post.IsVisible(time.Now().UTC()) {
		http.NotFound(w, r)
		return
	}

	rendered := *post
	htmlContent := render.RenderMarkdownCached(post.Markdown, post.BodyHash, theme.GetSyntaxThemeFromRequest(r))
	rendered.Content = template.HTML(htmlContent)

	w.Header().Set(config.HETag, post.BodyHash)
	writeJSON(w, http.StatusOK, &rendered)
}

// servePostPreview serves an unpublished post to holders of a valid signed
// preview token.
func servePostPreview(w http.ResponseWriter, r *http.Request) {
	if previewVerifier == nil {
		http.NotFound(w, r)
		return
	}

	id, ok := parsePostID(r)
	if !ok {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	tokenID, err := previewVerifier.Verify(r.URL.Query().Get("token"), time.Now())
	if err != nil || tokenID != id {
		http.Error(w, "Invalid or expired preview token", http.StatusForbidden)
		return
	}

	post, err := postRepository.ReadPost(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	rendered := *post
	htmlContent := render.RenderMarkdownCached(post.Markdown, post.BodyHash, theme.GetSyntaxThemeFromRequest(r))
	rendered.Content = template.HTML(htmlContent)

	writeJSON(w, http.StatusOK, &rendered)
}

func serveCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := Db.Query(`SELECT id, name, slug, color FROM categories ORDER BY name`)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error querying categories")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Color); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		categories = append(categories, c)
	}

	writeJSON(w, http.StatusOK, categories)
}

func serveTags(w http.ResponseWriter, r *http.Request) {
	rows, err := Db.Query(`SELECT id, name, slug FROM tags ORDER BY name`)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error querying tags")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		tags = append(tags, t)
	}

	writeJSON(w, http.StatusOK, tags)
}

// postPayload is the admin wire form of a post.
type postPayload struct {
	Title         string  `json:"title"`
	Slug          string  `json:"slug"`
	Excerpt       string  `json:"excerpt"`
	Body          string  `json:"body"`
	FeaturedImage string  `json:"featured_image"`
	CategoryIDs   []int64 `json:"category_ids"`
	TagIDs        []int64 `json:"tag_ids"`
}

func (p postPayload) applyTo(post *model.Post) {
	post.Title = p.Title
	post.Slug = p.Slug
	post.Excerpt = p.Excerpt
	post.Markdown = []byte(p.Body)
	post.FeaturedImage = p.FeaturedImage

	post.Categories = post.Categories[:0]
	for _, id := range p.CategoryIDs {
		post.Categories = append(post.Categories, model.Category{ID: id})
	}
	post.Tags = post.Tags[:0]
	for _, id := range p.TagIDs {
		post.Tags = append(post.Tags, model.Tag{ID: id})
	}
}

func serveCreatePost(w http.ResponseWriter, r *http.Request) {
	var payload postPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid post payload", http.StatusBadRequest)
		return
	}
	if payload.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	post := postRepository.NewPost()
	payload.applyTo(post)
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		post.Owner = userID
	}

	if err := postRepository.SavePost(post); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error saving post")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func serveUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(r)
	if !ok {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	post, err := postRepository.ReadPost(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var payload postPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid post payload", http.StatusBadRequest)
		return
	}

	updated := *post
	payload.applyTo(&updated)

	if err := postRepository.SetPostContent(&updated); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error updating post")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &updated)
}

// servePublishPost publishes immediately or schedules for a future time,
// then tears down the post's editing session and draft.
func servePublishPost(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(r)
	if !ok {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	var payload struct {
		PublishAt *time.Time `json:"publish_at,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	now := time.Now().UTC()
	if payload.PublishAt != nil && payload.PublishAt.After(now) {
		// Future date: mark as scheduled, the refresh sweep promotes it.
		post, err := postRepository.ReadPost(id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		scheduled := *post
		scheduled.Status = model.StatusScheduled
		at := payload.PublishAt.UTC()
		scheduled.PublishedAt = &at

		if err := postRepository.SetPostContent(&scheduled); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error scheduling post")
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
	} else {
		at := now
		if payload.PublishAt != nil {
			at = payload.PublishAt.UTC()
		}
		if err := postRepository.PublishPost(id, at); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error publishing post")
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
	}

	// Publishing finalizes the document: drop the draft and its session.
	editorHandler.CloseSession(r, model.DraftKey(id.String()))

	w.WriteHeader(http.StatusNoContent)
}

func serveMintPreviewToken(w http.ResponseWriter, r *http.Request) {
	if previewSigner == nil {
		http.Error(w, "Preview tokens are not configured", http.StatusServiceUnavailable)
		return
	}

	id, ok := parsePostID(r)
	if !ok {
		http.Error(w, config.ErrPostIDInvalid, http.StatusBadRequest)
		return
	}

	if _, err := postRepository.ReadPost(id); err != nil {
		http.NotFound(w, r)
		return
	}

	ttl := time.Duration(config.AppConfig.Preview.TokenTTLMinutes) * time.Minute
	token, err := previewSigner.Mint(id, ttl)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error minting preview token")
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"token": token,
		"url":   fmt.Sprintf("%s/api/posts/%d/preview?token=%s", config.AppConfig.Site.BaseURL, id, token),
	})
}

func serveSyntaxThemePostSet(w http.ResponseWriter, r *http.Request) {
	currTheme := r.FormValue("syntax-theme-select")
	if currTheme == "" {
		http.Error(w, "theme required", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieSyntaxTheme,
		Value:    currTheme,
		Path:     "/",
		HttpOnly: true,
	})

	themeStyle := []byte(theme.GenerateSyntaxCSS(currTheme))
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(themeStyle))
	w.WriteHeader(http.StatusOK)
	w.Write(themeStyle)
}

func serveSyntaxThemeGetTheme(w http.ResponseWriter, r *http.Request) {
	currTheme := r.PathValue("theme")

	themeStyle := []byte(theme.GenerateSyntaxCSS(currTheme))
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(themeStyle))
	w.WriteHeader(http.StatusOK)
	w.Write(themeStyle)
}

// eventsHandler streams autosave status transitions for one draft key.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "Draft key required", http.StatusBadRequest)
		return
	}

	w.Header().Set(config.HCType, "text/event-stream")
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := &sse.Client{
		Msg: make(chan string, 8),
		Key: model.DraftKey(key),
	}

	clients.Add(client)

	l.Debug().Str("draft_key", key).Msg("New SSE client connected")

	defer func() {
		clients.Delete(client)
		l.Debug().Str("draft_key", key).Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case msg := <-client.Msg:
			fmt.Fprintf(w, "event: autosave\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// broadcastAutosaveStatus fans coordinator transitions out to SSE watchers.
func broadcastAutosaveStatus(key model.DraftKey, st autosave.Status) {
	msg, err := json.Marshal(st)
	if err != nil {
		return
	}
	clients.Broadcast(key, string(msg))
}

func handleReloadPost(postID model.PostID) {
	go clients.Broadcast(model.DraftKey(postID.String()), "reload")
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}
