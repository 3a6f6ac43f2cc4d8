package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanth8495/trustchain/trust"
)

func TestDownloadFile(t *testing.T) {
	body := []byte("file contents")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	data, err := f.DownloadFile(srv.URL, int64(len(body)), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloadFileHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	_, err := f.DownloadFile(srv.URL+"/missing.json", 1024, 5*time.Second)
	var httpErr trust.ErrDownloadHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
}

func TestDownloadFileTooLong(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	_, err := f.DownloadFile(srv.URL, 1023, 5*time.Second)
	assert.ErrorIs(t, err, trust.ErrDownloadLengthMismatch{})

	// exactly at the ceiling is fine
	data, err := f.DownloadFile(srv.URL, 1024, 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
}

func TestDownloadFileTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refused connections from here on

	start := time.Now()
	f := &HTTPFetcher{MaxRetries: 2, RetryInterval: 10 * time.Millisecond}
	_, err := f.DownloadFile(srv.URL, 1024, time.Second)
	assert.ErrorIs(t, err, trust.ErrTransport{})
	assert.ErrorIs(t, err, trust.ErrDownload{})
	// both retries must actually have waited
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestDownloadFileNoRetryOnHTTPStatus(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := &HTTPFetcher{MaxRetries: 3, RetryInterval: 10 * time.Millisecond}
	_, err := f.DownloadFile(srv.URL, 1024, 5*time.Second)
	var httpErr trust.ErrDownloadHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Equal(t, 1, hits)
}
