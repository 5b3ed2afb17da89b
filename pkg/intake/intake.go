// Package intake persists inbound upload streams to scratch storage
// with a hard byte bound.
//
// The stream is copied in fixed-size chunks and aborted the moment the
// running total exceeds the configured limit, so an oversize payload is
// never fully read into memory or fully written to disk.
package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagelens/pagelens/pkg/workspace"
)

// chunkSize is the fixed copy granularity for upload streaming.
const chunkSize = 1 << 20

// Sentinel errors for intake operations.
var (
	// ErrNoFilename indicates the upload carried no filename.
	ErrNoFilename = errors.New("no filename supplied")

	// ErrSizeLimitExceeded indicates the upload exceeded the configured
	// maximum byte size.
	ErrSizeLimitExceeded = errors.New("upload exceeds size limit")
)

// StorageError wraps an underlying filesystem failure during intake.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("intake %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is an intake storage failure.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Result describes a persisted upload.
type Result struct {
	// Path is the durable scratch file holding the upload.
	Path string

	// Size is the exact byte count written.
	Size int64
}

// Save copies an upload stream into a fresh workspace under runsDir.
//
// On any failure the partially created workspace is removed before the
// error is returned; on success the caller owns the returned workspace
// and must Remove it when processing ends.
func Save(r io.Reader, filename, runsDir string, maxBytes int64) (*workspace.Workspace, *Result, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, nil, ErrNoFilename
	}

	ws, err := workspace.New(runsDir)
	if err != nil {
		return nil, nil, &StorageError{Op: "workspace", Err: err}
	}

	dest := ws.InputPath(strings.ToLower(filepath.Ext(filename)))
	size, err := copyBounded(r, dest, maxBytes)
	if err != nil {
		ws.Remove()
		return nil, nil, err
	}

	return ws, &Result{Path: dest, Size: size}, nil
}

func copyBounded(r io.Reader, dest string, maxBytes int64) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, &StorageError{Op: "create", Err: err}
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxBytes {
				return written, ErrSizeLimitExceeded
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return written, &StorageError{Op: "write", Err: err}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, &StorageError{Op: "read", Err: readErr}
		}
	}

	if err := f.Close(); err != nil {
		return written, &StorageError{Op: "close", Err: err}
	}
	return written, nil
}
