// Package mirrors fetches metadata and target files from an ordered list of
// repository mirrors with fallback. Each mirror is tried in configuration
// order; a response is accepted only once the caller's verify function has
// passed it, and every failure is recorded against the mirror that produced
// it so a total failure surfaces the full {mirror -> typed error} mapping.
package mirrors

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sumanth8495/trustchain/fetcher"
	"github.com/sumanth8495/trustchain/trust"
)

// Mirror is one repository mirror: a base URL plus the path prefixes under
// which it serves metadata documents and target files.
type Mirror struct {
	URLPrefix    string `yaml:"url_prefix" json:"url_prefix"`
	MetadataPath string `yaml:"metadata_path" json:"metadata_path"`
	TargetsPath  string `yaml:"targets_path" json:"targets_path"`
}

// MetadataURL resolves the URL for a metadata document on this mirror.
// version > 0 requests the versioned form used by the root rotation walk
// ("N.root.json").
func (m Mirror) MetadataURL(roleName string, version int64) string {
	name := url.QueryEscape(roleName)
	base := ensureTrailingSlash(m.URLPrefix) + orDefault(m.MetadataPath, "metadata")
	if version > 0 {
		return fmt.Sprintf("%s/%d.%s.json", base, version, name)
	}
	return fmt.Sprintf("%s/%s.json", base, name)
}

// TargetURL resolves the URL for a target file on this mirror.
func (m Mirror) TargetURL(targetPath string) string {
	return fmt.Sprintf("%s%s/%s", ensureTrailingSlash(m.URLPrefix), orDefault(m.TargetsPath, "targets"), targetPath)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// VerifyFunc inspects downloaded bytes before they are accepted. Returning a
// non-nil error rejects this mirror's response and moves on to the next one;
// the error is recorded against the mirror.
type VerifyFunc func(data []byte) error

// Client iterates mirrors sequentially with fallback, preserving
// deterministic first-trustworthy-answer-wins semantics.
type Client struct {
	Mirrors []Mirror
	Fetcher fetcher.Fetcher
	Timeout time.Duration
}

// FetchMetadata downloads and verifies the named metadata document, capped
// at maxLength bytes, from the first mirror that can supply a valid copy.
func (c *Client) FetchMetadata(roleName string, version int64, maxLength int64, verify VerifyFunc) ([]byte, error) {
	urls := make([]string, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		urls = append(urls, m.MetadataURL(roleName, version))
	}
	return c.fetch(urls, maxLength, verify)
}

// FetchTarget downloads and verifies a target file from the first mirror
// that can supply a valid copy.
func (c *Client) FetchTarget(targetPath string, maxLength int64, verify VerifyFunc) ([]byte, error) {
	urls := make([]string, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		urls = append(urls, m.TargetURL(targetPath))
	}
	return c.fetch(urls, maxLength, verify)
}

func (c *Client) fetch(urls []string, maxLength int64, verify VerifyFunc) ([]byte, error) {
	var failures []trust.MirrorError
	for _, u := range urls {
		data, err := c.Fetcher.DownloadFile(u, maxLength, c.Timeout)
		if err != nil {
			trust.GetLogger().Info("mirror download failed", "url", u, "err", err)
			failures = append(failures, trust.MirrorError{URL: u, Err: err})
			continue
		}
		if verify != nil {
			if err := verify(data); err != nil {
				trust.GetLogger().Info("mirror response rejected", "url", u, "err", err)
				failures = append(failures, trust.MirrorError{URL: u, Err: err})
				continue
			}
		}
		return data, nil
	}
	return nil, trust.ErrNoWorkingMirror{Errors: failures}
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
