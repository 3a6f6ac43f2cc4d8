package mirrors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanth8495/trustchain/trust"
)

// stubFetcher serves canned responses keyed by URL.
type stubFetcher struct {
	responses map[string][]byte
	errs      map[string]error
	requested []string
}

func (s *stubFetcher) DownloadFile(urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	s.requested = append(s.requested, urlPath)
	if err, ok := s.errs[urlPath]; ok {
		return nil, err
	}
	if data, ok := s.responses[urlPath]; ok {
		return data, nil
	}
	return nil, trust.ErrDownloadHTTP{StatusCode: 404, URL: urlPath}
}

func TestMetadataURL(t *testing.T) {
	m := Mirror{URLPrefix: "https://example.com/repo"}
	assert.Equal(t, "https://example.com/repo/metadata/timestamp.json", m.MetadataURL("timestamp", 0))
	assert.Equal(t, "https://example.com/repo/metadata/3.root.json", m.MetadataURL("root", 3))

	m = Mirror{URLPrefix: "https://example.com/repo/", MetadataPath: "meta", TargetsPath: "files"}
	assert.Equal(t, "https://example.com/repo/meta/snapshot.json", m.MetadataURL("snapshot", 0))
	assert.Equal(t, "https://example.com/repo/files/dir/f.txt", m.TargetURL("dir/f.txt"))
}

func TestFetchMetadataFallback(t *testing.T) {
	good := []byte(`{"signed":{}}`)
	f := &stubFetcher{
		responses: map[string][]byte{
			"https://b.example/metadata/timestamp.json": good,
		},
		errs: map[string]error{
			"https://a.example/metadata/timestamp.json": trust.ErrDownloadHTTP{StatusCode: 500},
		},
	}
	c := &Client{
		Mirrors: []Mirror{{URLPrefix: "https://a.example"}, {URLPrefix: "https://b.example"}},
		Fetcher: f,
	}
	data, err := c.FetchMetadata("timestamp", 0, 1024, nil)
	require.NoError(t, err)
	assert.Equal(t, good, data)
	// mirrors are tried in configuration order
	assert.Equal(t, []string{
		"https://a.example/metadata/timestamp.json",
		"https://b.example/metadata/timestamp.json",
	}, f.requested)
}

func TestFetchMetadataVerifyRejection(t *testing.T) {
	f := &stubFetcher{
		responses: map[string][]byte{
			"https://a.example/metadata/timestamp.json": []byte("bogus"),
			"https://b.example/metadata/timestamp.json": []byte("valid"),
		},
	}
	c := &Client{
		Mirrors: []Mirror{{URLPrefix: "https://a.example"}, {URLPrefix: "https://b.example"}},
		Fetcher: f,
	}
	verify := func(data []byte) error {
		if string(data) != "valid" {
			return trust.ErrUnsignedMetadata{Msg: "signature threshold not reached"}
		}
		return nil
	}
	data, err := c.FetchMetadata("timestamp", 0, 1024, verify)
	require.NoError(t, err)
	assert.Equal(t, []byte("valid"), data)
}

func TestFetchMetadataAllMirrorsFail(t *testing.T) {
	f := &stubFetcher{
		errs: map[string]error{
			"https://a.example/metadata/snapshot.json": trust.ErrExpiredMetadata{Msg: "snapshot.json is expired"},
			"https://b.example/metadata/snapshot.json": trust.ErrDownloadHTTP{StatusCode: 404},
		},
	}
	c := &Client{
		Mirrors: []Mirror{{URLPrefix: "https://a.example"}, {URLPrefix: "https://b.example"}},
		Fetcher: f,
	}
	_, err := c.FetchMetadata("snapshot", 0, 1024, nil)

	var agg trust.ErrNoWorkingMirror
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 2)
	// per-mirror errors keep configuration order and their types
	assert.Equal(t, "https://a.example/metadata/snapshot.json", agg.Errors[0].URL)
	assert.ErrorIs(t, agg.Errors[0].Err, trust.ErrExpiredMetadata{})
	assert.ErrorIs(t, agg.Errors[1].Err, trust.ErrDownloadHTTP{})
	// and remain matchable through the aggregate
	assert.ErrorIs(t, err, trust.ErrExpiredMetadata{})
	assert.ErrorContains(t, err, "snapshot.json is expired")
}

func TestFetchMetadataVerifyFailureRecorded(t *testing.T) {
	f := &stubFetcher{
		responses: map[string][]byte{
			"https://a.example/metadata/timestamp.json": []byte("stale"),
		},
	}
	c := &Client{Mirrors: []Mirror{{URLPrefix: "https://a.example"}}, Fetcher: f}
	rejection := trust.ErrExpiredMetadata{Msg: "timestamp.json is expired"}
	_, err := c.FetchMetadata("timestamp", 0, 1024, func([]byte) error { return rejection })

	var agg trust.ErrNoWorkingMirror
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 1)
	assert.True(t, errors.Is(agg.Errors[0].Err, rejection))
}

func TestFetchTarget(t *testing.T) {
	content := []byte("target bytes")
	f := &stubFetcher{
		responses: map[string][]byte{
			"https://a.example/targets/dir/f.txt": content,
		},
	}
	c := &Client{Mirrors: []Mirror{{URLPrefix: "https://a.example"}}, Fetcher: f}
	data, err := c.FetchTarget("dir/f.txt", int64(len(content)), nil)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = c.FetchTarget("absent.txt", 16, nil)
	var agg trust.ErrNoWorkingMirror
	assert.ErrorAs(t, err, &agg)
}
