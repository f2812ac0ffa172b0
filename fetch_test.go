package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h, c)))
	return buf.Bytes()
}

var fastPolicy = RetryPolicy{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second}

func TestFetchAllReturnsOneImagePerURL(t *testing.T) {
	a := pngBytes(t, 8, 4, color.RGBA{255, 0, 0, 255})
	b := pngBytes(t, 6, 6, color.RGBA{0, 255, 0, 255})
	mux := http.NewServeMux()
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, r *http.Request) { w.Write(a) })
	mux.HandleFunc("/b.png", func(w http.ResponseWriter, r *http.Request) { w.Write(b) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), fastPolicy, 1<<20)
	images, err := f.FetchAll(context.Background(), []string{srv.URL + "/a.png", srv.URL + "/b.png"})

	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, Fingerprint(sha256.Sum256(a)), images[0].Fingerprint)
	assert.Equal(t, Fingerprint(sha256.Sum256(b)), images[1].Fingerprint)
	assert.Equal(t, 8, images[0].Image.Bounds().Dx())
	assert.Equal(t, srv.URL+"/b.png", images[1].URL)
}

func TestFetchAllIsAllOrNothing(t *testing.T) {
	a := pngBytes(t, 4, 4, color.RGBA{0, 0, 0, 255})
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) { w.Write(a) })
	mux.HandleFunc("/missing.png", http.NotFound)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), fastPolicy, 1<<20)
	tests := []struct {
		name string
		urls []string
	}{
		{"last fails", []string{srv.URL + "/ok.png", srv.URL + "/missing.png"}},
		{"first fails", []string{srv.URL + "/missing.png", srv.URL + "/ok.png"}},
		{"all fail", []string{srv.URL + "/missing.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := f.FetchAll(context.Background(), tt.urls)
			assert.ErrorIs(t, err, ErrHTTPStatus)
			assert.Nil(t, images)
		})
	}
}

func TestFetchAllRetriesTransientFailures(t *testing.T) {
	a := pngBytes(t, 4, 4, color.RGBA{0, 0, 255, 255})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write(a)
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), fastPolicy, 1<<20)
	images, err := f.FetchAll(context.Background(), []string{srv.URL})

	require.NoError(t, err)
	assert.Len(t, images, 1)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchAllGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), fastPolicy, 1<<20)
	_, err := f.FetchAll(context.Background(), []string{srv.URL})

	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchAllAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	policy := RetryPolicy{Attempts: 1, Timeout: 20 * time.Millisecond}
	f := newHTTPFetcher(srv.Client(), policy, 1<<20)
	start := time.Now()
	_, err := f.FetchAll(context.Background(), []string{srv.URL})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchAllRejectsBadPayloads(t *testing.T) {
	big := pngBytes(t, 64, 64, color.RGBA{1, 2, 3, 255})
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not an image")) })
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) { w.Write(big) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), RetryPolicy{Attempts: 1}, int64(len(big)-1))

	_, err := f.FetchAll(context.Background(), []string{srv.URL + "/text"})
	assert.ErrorContains(t, err, "decode")

	_, err = f.FetchAll(context.Background(), []string{srv.URL + "/big"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchAllNeedsResources(t *testing.T) {
	f := newHTTPFetcher(nil, fastPolicy, 0)
	_, err := f.FetchAll(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestFingerprintIsStableForSameBytes(t *testing.T) {
	a := pngBytes(t, 5, 5, color.RGBA{9, 9, 9, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write(a) }))
	defer srv.Close()

	f := newHTTPFetcher(srv.Client(), fastPolicy, 0)
	first, err := f.FetchAll(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	second, err := f.FetchAll(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	assert.Equal(t, fingerprintsOf(first), fingerprintsOf(second))
	set := SlideSet{Slides: []*image.RGBA{nil}, Fingerprints: fingerprintsOf(first)}
	assert.True(t, set.SameContent(fingerprintsOf(second)))
	assert.Len(t, first[0].Fingerprint.String(), 64)
	assert.Len(t, first[0].Fingerprint.Short(), 8)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := decodeImage([]byte{0x89, 'P', 'N', 'G'})
	assert.Error(t, err)

	img, err := decodeImage(pngBytes(t, 3, 2, color.RGBA{255, 255, 255, 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}
