// Package files stores uploads on the local filesystem and hands out signed,
// expiring download links for them.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidKey  = errors.New("invalid object key")
	ErrInvalidLink = errors.New("invalid or expired download link")
)

type linkClaims struct {
	jwt.RegisteredClaims
	Key string `json:"key"`
}

// LocalBucket keeps objects under root. Keys are slash separated and may not
// escape root.
type LocalBucket struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocalBucket(root, baseURL, secret string) (*LocalBucket, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("files root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create files root: %w", err)
	}
	return &LocalBucket{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Put writes r to key, replacing any existing object. The object appears
// atomically once fully written.
func (b *LocalBucket) Put(ctx context.Context, key string, r io.Reader) error {
	dst, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	return os.Rename(tmp.Name(), dst)
}

// Open returns the object at key. The caller closes it.
func (b *LocalBucket) Open(key string) (*os.File, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// SignedURL returns a download link that is valid for ttl.
func (b *LocalBucket) SignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := b.resolve(key); err != nil {
		return "", err
	}
	now := b.now()
	claims := linkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Key: key,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return b.baseURL + "/files?token=" + url.QueryEscape(token), nil
}

// Verify returns the object key a link token grants access to.
func (b *LocalBucket) Verify(token string) (string, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil || claims.Key == "" {
		return "", ErrInvalidLink
	}
	return claims.Key, nil
}

func (b *LocalBucket) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
