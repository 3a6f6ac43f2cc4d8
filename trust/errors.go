package trust

import (
	"fmt"
	"strings"
)

// Error types for metadata verification and mirror download failures. Each
// attack class the client defends against has its own type so callers can
// assert on the specific rejection reason with errors.Is / errors.As.

// ErrRepository - an error with a repository's state. It covers all
// rejections that originate from the repository side when looking from the
// perspective of the verifying client.
type ErrRepository struct {
	Msg string
}

func (e ErrRepository) Error() string {
	return fmt.Sprintf("repository error: %s", e.Msg)
}

// ErrUnsignedMetadata - a metadata document with an insufficient threshold of
// valid signatures.
type ErrUnsignedMetadata struct {
	Msg string
}

func (e ErrUnsignedMetadata) Error() string {
	return fmt.Sprintf("unsigned metadata error: %s", e.Msg)
}

// ErrUnsignedMetadata is a subset of ErrRepository
func (e ErrUnsignedMetadata) Is(target error) bool {
	return target == ErrRepository{} || target == ErrUnsignedMetadata{}
}

// ErrRollback - a candidate document carries a version lower than the
// locally trusted one.
type ErrRollback struct {
	Msg string
}

func (e ErrRollback) Error() string {
	return fmt.Sprintf("rollback attack error: %s", e.Msg)
}

// ErrRollback is a subset of ErrRepository
func (e ErrRollback) Is(target error) bool {
	return target == ErrRepository{} || target == ErrRollback{}
}

// ErrExpiredMetadata - a metadata document is past its expiration. Raised for
// freshly downloaded documents and for locally trusted ones whose expiration
// has passed, whether or not the mirror offered anything newer.
type ErrExpiredMetadata struct {
	Msg string
}

func (e ErrExpiredMetadata) Error() string {
	return fmt.Sprintf("expired metadata error: %s", e.Msg)
}

// ErrExpiredMetadata is a subset of ErrRepository
func (e ErrExpiredMetadata) Is(target error) bool {
	return target == ErrRepository{} || target == ErrExpiredMetadata{}
}

// ErrLengthOrHashMismatch - downloaded bytes do not match the length or hash
// fingerprint recorded by the referring role (mix-and-match or corrupted
// transfer).
type ErrLengthOrHashMismatch struct {
	Msg string
}

func (e ErrLengthOrHashMismatch) Error() string {
	return fmt.Sprintf("length/hash verification error: %s", e.Msg)
}

// ErrLengthOrHashMismatch is a subset of ErrRepository
func (e ErrLengthOrHashMismatch) Is(target error) bool {
	return target == ErrRepository{} || target == ErrLengthOrHashMismatch{}
}

// ErrRootRotation - a root rotation chain could not be verified.
type ErrRootRotation struct {
	Msg string
}

func (e ErrRootRotation) Error() string {
	return fmt.Sprintf("root rotation error: %s", e.Msg)
}

// ErrRootRotation is a subset of ErrRepository
func (e ErrRootRotation) Is(target error) bool {
	return target == ErrRepository{} || target == ErrRootRotation{}
}

// ErrUnknownTarget - no trusted targets role covers the requested path.
type ErrUnknownTarget struct {
	Msg string
}

func (e ErrUnknownTarget) Error() string {
	return fmt.Sprintf("unknown target error: %s", e.Msg)
}

// Download errors

// ErrDownload - a file download failed.
type ErrDownload struct {
	Msg string
}

func (e ErrDownload) Error() string {
	return fmt.Sprintf("download error: %s", e.Msg)
}

// ErrDownloadLengthMismatch - a response exceeded the maximum length the
// caller allowed for it (endless-data defense).
type ErrDownloadLengthMismatch struct {
	Msg string
}

func (e ErrDownloadLengthMismatch) Error() string {
	return fmt.Sprintf("download length mismatch error: %s", e.Msg)
}

// ErrDownloadLengthMismatch is a subset of ErrDownload
func (e ErrDownloadLengthMismatch) Is(target error) bool {
	return target == ErrDownload{} || target == ErrDownloadLengthMismatch{}
}

// ErrDownloadHTTP - an HTTP error status from a mirror.
type ErrDownloadHTTP struct {
	StatusCode int
	URL        string
}

func (e ErrDownloadHTTP) Error() string {
	return fmt.Sprintf("failed to download %s, http status code: %d", e.URL, e.StatusCode)
}

// ErrDownloadHTTP is a subset of ErrDownload
func (e ErrDownloadHTTP) Is(target error) bool {
	if t, ok := target.(ErrDownloadHTTP); ok {
		return t == ErrDownloadHTTP{} || t == e
	}
	return target == ErrDownload{}
}

// ErrTransport - the transport failed before an HTTP status was obtained
// (connection refused, timeout, DNS failure).
type ErrTransport struct {
	URL string
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", e.URL, e.Err)
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrTransport is a subset of ErrDownload
func (e ErrTransport) Is(target error) bool {
	return target == ErrDownload{} || target == ErrTransport{}
}

// MirrorError pairs a mirror URL with the typed error it produced.
type MirrorError struct {
	URL string
	Err error
}

// ErrNoWorkingMirror - no configured mirror could supply valid data for a
// metadata or target request. Errors holds one entry per attempted mirror in
// configuration order, so callers can distinguish "all mirrors returned
// expired metadata" from "all mirrors unreachable".
type ErrNoWorkingMirror struct {
	Errors []MirrorError
}

func (e ErrNoWorkingMirror) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, me := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", me.URL, me.Err))
	}
	return fmt.Sprintf("no working mirror was found: %s", strings.Join(parts, "; "))
}

// Unwrap exposes the per-mirror errors so errors.Is and errors.As can match
// the underlying rejection kind through the aggregate.
func (e ErrNoWorkingMirror) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, me := range e.Errors {
		errs = append(errs, me.Err)
	}
	return errs
}

// ValueError
type ErrValue struct {
	Msg string
}

func (e ErrValue) Error() string {
	return fmt.Sprintf("value error: %s", e.Msg)
}

// TypeError
type ErrType struct {
	Msg string
}

func (e ErrType) Error() string {
	return fmt.Sprintf("type error: %s", e.Msg)
}

// RuntimeError
type ErrRuntime struct {
	Msg string
}

func (e ErrRuntime) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Msg)
}
