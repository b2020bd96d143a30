// Package storage keeps uploaded chat attachments on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("file exceeds upload limit")

const (
	KindImage    = "image"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindDocument = "document"
)

// Stored describes a saved upload.
type Stored struct {
	URL  string `json:"file_url"`
	Kind string `json:"file_type"`
	MIME string `json:"-"`
	Path string `json:"-"`
}

// Store writes uploads under dir and addresses them below urlPrefix.
type Store struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewStore creates dir if needed.
func NewStore(dir, urlPrefix string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, urlPrefix: "/" + strings.Trim(urlPrefix, "/"), maxBytes: maxBytes}, nil
}

// Dir returns the directory served under URLPrefix.
func (s *Store) Dir() string { return s.dir }

// URLPrefix returns the public path prefix of stored files.
func (s *Store) URLPrefix() string { return s.urlPrefix }

// Save stores r under a fresh name that keeps the original extension. The kind is
// taken from the content; declared is used only when the content is not recognised.
func (s *Store) Save(originalName string, r io.Reader, declared string) (Stored, error) {
	name := uuid.NewString() + extension(originalName)
	dst := filepath.Join(s.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return Stored{}, err
	}

	detected, err := mimetype.DetectFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		return Stored{}, fmt.Errorf("detect upload type: %w", err)
	}
	mime := detected.String()
	if detected.Is("application/octet-stream") && declared != "" {
		mime = declared
	}

	return Stored{
		URL:  path.Join(s.urlPrefix, name),
		Kind: KindOf(mime),
		MIME: mime,
		Path: dst,
	}, nil
}

// KindOf maps a MIME type onto the attachment kinds clients render.
func KindOf(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	default:
		return KindDocument
	}
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
