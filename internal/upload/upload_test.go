package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestUploadSendsMultipartAndFillsDefaults(t *testing.T) {
	var gotName, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		_, _ = w.Write([]byte(`{"url":"https://files.example/abc"}`))
	}))
	defer srv.Close()

	c := New(Options{
		Endpoint: srv.URL,
		Token:    func() (string, error) { return "tok", nil },
		Log:      logger.Discard(),
	})
	path := writeFile(t, "brief.pdf", []byte("quarterly brief"))

	att, err := c.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, protocol.Attachment{
		Name:     "brief.pdf",
		MimeType: "application/pdf",
		Size:     int64(len("quarterly brief")),
		URL:      "https://files.example/abc",
	}, att)
	assert.Equal(t, "brief.pdf", gotName)
	assert.Equal(t, "quarterly brief", gotBody)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestUploadFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	ctx := context.Background()
	path := writeFile(t, "a.png", []byte("png"))

	_, err := New(Options{Log: logger.Discard()}).Upload(ctx, path)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Options{Endpoint: srv.URL, Log: logger.Discard()}).Upload(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = New(Options{Endpoint: srv.URL, MaxSize: 2, Log: logger.Discard()}).Upload(ctx, path)
	assert.True(t, errors.Is(err, ErrTooLarge), "got %v", err)

	_, err = New(Options{Endpoint: srv.URL, Log: logger.Discard()}).Upload(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestUploadRejectsResponseWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"name":"x"}`))
	}))
	defer srv.Close()
	_, err := New(Options{Endpoint: srv.URL, Log: logger.Discard()}).Upload(context.Background(), writeFile(t, "x.txt", []byte("x")))
	assert.ErrorContains(t, err, "no url")
}

func TestDescribeAndDetect(t *testing.T) {
	assert.Equal(t, "deck.pptx (1.5 MB)", Describe(protocol.Attachment{Name: "deck.pptx", Size: 1_500_000}))
	assert.Equal(t, "logo.svg", Describe(protocol.Attachment{Name: "logo.svg"}))
	assert.Equal(t, "image/png", DetectType("LOGO.PNG"))
	assert.Equal(t, "application/octet-stream", DetectType("data.unknownext"))
}
