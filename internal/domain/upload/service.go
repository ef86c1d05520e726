package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/segmentio/ksuid"
)

// URLPrefix is the public path uploaded files are served under.
const URLPrefix = "/uploads/"

// Upload is the result of storing one file.
type Upload struct {
	Key         string `json:"-"`
	URL         string `json:"url"`
	Size        int64  `json:"-"`
	ContentType string `json:"-"`
}

// Service stores uploaded files and resolves their public URLs.
type Service struct {
	storage  Storage
	maxBytes int64
}

// NewService wraps storage. maxBytes <= 0 means no size cap.
func NewService(storage Storage, maxBytes int64) *Service {
	return &Service{storage: storage, maxBytes: maxBytes}
}

// MaxBytes returns the upload size cap, or 0 when unlimited.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload stores a multipart file under a fresh unique name. The content is
// only sniffed to label the stored object.
func (s *Service) Upload(ctx context.Context, fh *multipart.FileHeader) (*Upload, error) {
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open multipart file: %w", err)
	}
	defer file.Close()

	return s.Save(ctx, fh.Filename, file, fh.Size)
}

// Save stores r under a new name derived from filename's extension.
func (s *Service) Save(ctx context.Context, filename string, r io.Reader, size int64) (*Upload, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType := strings.Split(mimetype.Detect(head).String(), ";")[0]

	return s.put(ctx, NewKey(filename), io.MultiReader(bytes.NewReader(head), r), size, contentType)
}

// Put stores r under an explicit key, e.g. a name derived from another upload.
func (s *Service) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Upload, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	return s.put(ctx, key, r, size, contentType)
}

func (s *Service) put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Upload, error) {
	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		return nil, err
	}
	return &Upload{Key: key, URL: URLPrefix + key, Size: size, ContentType: contentType}, nil
}

// DerivedKey names a file produced from key, e.g. "abc.jpg" -> "abc-nobg.png".
func DerivedKey(key, suffix, ext string) string {
	return strings.TrimSuffix(key, filepath.Ext(key)) + suffix + ext
}

// Open returns the content behind a public upload URL or a bare key.
func (s *Service) Open(ctx context.Context, urlOrKey string) (io.ReadCloser, *Object, error) {
	key, err := KeyFromURL(urlOrKey)
	if err != nil {
		return nil, nil, err
	}
	return s.storage.Open(ctx, key)
}

// Delete removes the file behind a public upload URL or a bare key.
func (s *Service) Delete(ctx context.Context, urlOrKey string) error {
	key, err := KeyFromURL(urlOrKey)
	if err != nil {
		return err
	}
	return s.storage.Delete(ctx, key)
}

// NewKey builds a collision-resistant, time-ordered file name keeping
// filename's extension.
func NewKey(filename string) string {
	return ksuid.New().String() + Ext(filename)
}

// Ext returns filename's lowercased extension, or ".bin" when it has none
// or it contains anything but ASCII letters and digits.
func Ext(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 10 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".bin"
		}
	}
	return ext
}

// KeyFromURL extracts the storage key from "/uploads/<key>", an absolute URL
// ending in that path, or a bare key.
func KeyFromURL(u string) (string, error) {
	if i := strings.Index(u, URLPrefix); i >= 0 {
		u = u[i+len(URLPrefix):]
	}
	if j := strings.IndexAny(u, "?#"); j >= 0 {
		u = u[:j]
	}
	if !ValidKey(u) {
		return "", ErrInvalidKey
	}
	return u, nil
}
