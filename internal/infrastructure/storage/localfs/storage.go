package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

const metaSuffix = ".meta.json"

// Storage is a BlobStore on the local filesystem. Signed URLs point at the
// API's /blobs/ route and are verified with the same HMAC key.
type Storage struct {
	basePath   string
	signingKey []byte
	publicBase string
	now        func() time.Time
}

type blobMeta struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int               `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

func New(basePath string, signingKey []byte, publicBaseURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath:   basePath,
		signingKey: signingKey,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		now:        time.Now,
	}, nil
}

func (s *Storage) Put(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := writeAtomic(full, data); err != nil {
		return err
	}
	meta, err := json.Marshal(blobMeta{
		ContentType: contentType,
		Metadata:    metadata,
		Size:        len(data),
		StoredAt:    s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode blob metadata: %w", err)
	}
	return writeAtomic(full+metaSuffix, meta)
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrNotFound, "get blob", fmt.Errorf("path %s", key))
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// ContentType returns the stored content type, or application/octet-stream.
func (s *Storage) ContentType(key string) string {
	full, err := s.resolve(key)
	if err != nil {
		return "application/octet-stream"
	}
	raw, err := os.ReadFile(full + metaSuffix)
	if err != nil {
		return "application/octet-stream"
	}
	var meta blobMeta
	if json.Unmarshal(raw, &meta) != nil || meta.ContentType == "" {
		return "application/octet-stream"
	}
	return meta.ContentType
}

func (s *Storage) Delete(_ context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrNotFound, "delete blob", fmt.Errorf("path %s", key))
	}
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	_ = os.Remove(full + metaSuffix)
	return nil
}

// DeletePrefix removes every blob under a directory-style prefix and reports
// how many payloads were removed.
func (s *Storage) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "delete blob prefix", errors.New("empty prefix"))
	}
	full, err := s.resolve(prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasSuffix(p, metaSuffix) {
			removed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan blob prefix: %w", err)
	}
	if err := os.RemoveAll(full); err != nil {
		return 0, fmt.Errorf("delete blob prefix: %w", err)
	}
	return removed, nil
}

func (s *Storage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "sign blob url", errors.New("signing key is not configured"))
	}
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "sign blob url", errors.New("ttl must be positive"))
	}
	expires := s.now().Add(ttl).Unix()
	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("sig", s.sign(key, expires))
	return s.publicBase + "/blobs/" + escapePath(key) + "?" + query.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (s *Storage) Verify(key, expires, sig string) error {
	if len(s.signingKey) == 0 {
		return domain.WrapError(domain.ErrForbidden, "verify blob url", errors.New("signing disabled"))
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return domain.WrapError(domain.ErrForbidden, "verify blob url", errors.New("bad expiry"))
	}
	if s.now().Unix() > exp {
		return domain.WrapError(domain.ErrForbidden, "verify blob url", errors.New("url expired"))
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return domain.WrapError(domain.ErrForbidden, "verify blob url", errors.New("signature mismatch"))
	}
	return nil
}

func (s *Storage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a slash-separated key into basePath, refusing escapes.
func (s *Storage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") || strings.HasSuffix(clean, metaSuffix) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob path", fmt.Errorf("invalid path %q", key))
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean[1:])), nil
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func escapePath(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
