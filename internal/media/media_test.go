package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFSStorage(t *testing.T) {
	store, err := NewFSStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		if err := store.Save(ctx, "a.png", strings.NewReader("image-bytes")); err != nil {
			t.Fatal(err)
		}

		obj, err := store.Open(ctx, "a.png")
		if err != nil {
			t.Fatal(err)
		}
		defer obj.Close()

		data, _ := io.ReadAll(obj)
		if string(data) != "image-bytes" {
			t.Errorf("Expected stored bytes back, got %q", data)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		if _, err := store.Open(ctx, "nope.png"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("path traversal is neutralized", func(t *testing.T) {
		if err := store.Save(ctx, "../../evil.png", strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Open(ctx, "evil.png"); err != nil {
			t.Errorf("Expected the base name to be stored inside the directory, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Save(ctx, "gone.png", strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete(ctx, "gone.png"); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Open(ctx, "gone.png"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, "gone.png"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestServeUpload(t *testing.T) {
	store, err := NewFSStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(store, 1)

	t.Run("accepts an image", func(t *testing.T) {
		body, ctype := multipartBody(t, "photo.jpg", "jpeg-bytes")
		req := httptest.NewRequest(http.MethodPost, "/api/admin/media", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		h.ServeUpload(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"url":"/media/`) {
			t.Errorf("Expected a media URL in the response, got %s", rec.Body.String())
		}
	})

	t.Run("rejects unknown extensions", func(t *testing.T) {
		body, ctype := multipartBody(t, "script.exe", "MZ")
		req := httptest.NewRequest(http.MethodPost, "/api/admin/media", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		h.ServeUpload(rec, req)

		if rec.Code != http.StatusUnsupportedMediaType {
			t.Errorf("Expected 415, got %d", rec.Code)
		}
	})

	t.Run("rejects missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/media", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		h.ServeUpload(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestServeGet(t *testing.T) {
	store, err := NewFSStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(store, 1)
	if err := store.Save(context.Background(), "pic.png", strings.NewReader("png-bytes")); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /media/{name}", h.ServeGet)

	t.Run("serves stored object", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/pic.png", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != "png-bytes" {
			t.Errorf("Expected object bytes, got %q", rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != "image/png" {
			t.Errorf("Expected image/png, got %q", got)
		}
	})

	t.Run("missing object is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/none.png", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}
