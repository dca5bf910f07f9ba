package schedule

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "schedfill/internal/log"
)

func init() {
	appLog.SetOutput(io.Discard)
}

const sheet = "2024-03-10|09:00|10:00|A1\tAna Anić\n"

func TestFetchUsesETag(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, sheet)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	body, cached, err := f.Fetch(ctx, srv.URL+"/pub?token=abc")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, sheet, string(body))

	body, cached, err = f.Fetch(ctx, srv.URL+"/pub?token=abc")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, sheet, string(body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestFetchFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, sheet)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	_, _, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)

	fail.Store(true)
	body, cached, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, sheet, string(body))

	// Nothing cached for a different URL.
	_, _, err = f.Fetch(ctx, srv.URL+"/other")
	assert.Error(t, err)
}

func TestReadInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.tsv")
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0o644))

	text, err := ReadInput(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, sheet, text)

	_, err = ReadInput(context.Background(), nil, filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.test/a"))
	assert.True(t, IsURL("http://example.test"))
	assert.False(t, IsURL("./schedule.tsv"))
	assert.False(t, IsURL("-"))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://docs.example/...(redacted)", redactURL("https://docs.example/sheet/d/SECRET/pub?output=tsv"))
	assert.Equal(t, "https://docs.example/...(redacted)", redactURL("https://docs.example?key=SECRET"))
	assert.Equal(t, "url://...(redacted)", redactURL("not a url"))
}
