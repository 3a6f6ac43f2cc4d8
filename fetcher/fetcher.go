// Package fetcher downloads raw bytes from a single URL, enforcing a caller
// supplied size ceiling and timeout. Mirror iteration and verification live
// one level up, in the mirrors package.
package fetcher

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sumanth8495/trustchain/trust"
)

// Fetcher interface
type Fetcher interface {
	DownloadFile(urlPath string, maxLength int64, timeout time.Duration) ([]byte, error)
}

// HTTPFetcher implements Fetcher over plain HTTP(S). Transient transport
// failures are retried with capped exponential backoff; HTTP error statuses
// and oversize responses are not retried.
type HTTPFetcher struct {
	// UserAgent is set on requests when non-empty.
	UserAgent string
	// MaxRetries bounds the backoff retries per download. Zero disables
	// retrying.
	MaxRetries uint64
	// RetryInterval is the initial backoff interval. Defaults to 500ms.
	RetryInterval time.Duration
}

// DownloadFile downloads a file from urlPath, erroring out if it fails, its
// length exceeds maxLength or the timeout is reached.
func (f *HTTPFetcher) DownloadFile(urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	op := func() ([]byte, error) {
		return f.download(urlPath, maxLength, timeout)
	}
	interval := f.RetryInterval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval

	var data []byte
	err := backoff.Retry(func() error {
		var opErr error
		data, opErr = op()
		if opErr == nil {
			return nil
		}
		// only transport-level failures are worth retrying
		if !errors.Is(opErr, trust.ErrTransport{}) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, backoff.WithMaxRetries(bo, f.MaxRetries))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *HTTPFetcher) download(urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequest(http.MethodGet, urlPath, nil)
	if err != nil {
		return nil, trust.ErrDownload{Msg: err.Error()}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, trust.ErrTransport{URL: urlPath, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, trust.ErrDownloadHTTP{StatusCode: res.StatusCode, URL: urlPath}
	}
	// Content-Length may be absent or inaccurate; it is only an early
	// rejection, the read below is the authoritative bound.
	if header := res.Header.Get("Content-Length"); header != "" {
		length, err := strconv.ParseInt(header, 10, 0)
		if err != nil {
			return nil, trust.ErrDownload{Msg: err.Error()}
		}
		if length > maxLength {
			return nil, trust.ErrDownloadLengthMismatch{Msg: fmt.Sprintf(
				"download failed for %s, length %d is larger than expected %d", urlPath, length, maxLength)}
		}
	}
	// Read maxLength+1 so reads past the ceiling are detectable.
	data, err := io.ReadAll(io.LimitReader(res.Body, maxLength+1))
	if err != nil {
		return nil, trust.ErrTransport{URL: urlPath, Err: err}
	}
	if int64(len(data)) > maxLength {
		return nil, trust.ErrDownloadLengthMismatch{Msg: fmt.Sprintf(
			"download failed for %s, length %d is larger than expected %d", urlPath, len(data), maxLength)}
	}
	return data, nil
}
