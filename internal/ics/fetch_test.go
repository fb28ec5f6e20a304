package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

func TestFetchRevalidatesWithETag(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)

	first, err := f.Fetch(context.Background(), srv.URL+"/feed.ics")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, feedBody, string(first.Body))

	second, err := f.Fetch(context.Background(), srv.URL+"/feed.ics")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, feedBody, string(second.Body))

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestFetchFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feedBody, string(res.Body))
}

func TestFetchWithoutCacheDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	f := NewFetcher("", time.Second)
	for range 2 {
		res, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
}

func TestFetchRejectsOversizedFeed(t *testing.T) {
	var big atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if big.Load() {
			_, _ = w.Write(bytes.Repeat([]byte("X"), MaxFeedBytes+1))
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	f := NewFetcher(cacheDir, 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	big.Store(true)
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFeedTooLarge)

	// The last good copy survives.
	cached, err := os.ReadFile(filepath.Join(f.cachePath(srv.URL), "body.ics"))
	require.NoError(t, err)
	assert.Equal(t, feedBody, string(cached))
}

func TestFetchAcceptsFeedAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("X"), MaxFeedBytes))
	}))
	defer srv.Close()

	res, err := NewFetcher("", 5*time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, MaxFeedBytes)
}

func TestFetchErrorsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir(), time.Second).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	f := NewFetcher("", time.Second)
	for _, raw := range []string{"", "file:///etc/passwd", "ftp://example.com/a.ics", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		assert.Error(t, err, raw)
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/private/token123/basic.ics"))
	assert.Equal(t, "ics://...(redacted)", redactURL("::not a url"))
}
