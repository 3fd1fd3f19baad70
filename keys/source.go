package keys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default file names looked up by FileSource.
const (
	DefaultPublicFile  = "jwks-public.json"
	DefaultPrivateFile = "jwks-private.json"
)

// Source yields raw public and private JWKS documents.
type Source interface {
	Load(ctx context.Context) (public, private []byte, err error)
}

// BytesSource serves in-memory documents.
type BytesSource struct {
	Public  []byte
	Private []byte
}

func (s BytesSource) Load(context.Context) ([]byte, []byte, error) {
	if len(s.Public) == 0 || len(s.Private) == 0 {
		return nil, nil, fmt.Errorf("%w: empty key material", ErrKeyLoad)
	}
	return s.Public, s.Private, nil
}

// FileSource reads the two documents from a directory.
//
// When Dir is empty the first candidate directory containing both files is
// used: $JWKS_DIR, ./config, ../config.
type FileSource struct {
	Dir         string
	PublicFile  string
	PrivateFile string
}

func (s FileSource) Load(ctx context.Context) ([]byte, []byte, error) {
	pubName, privName := s.PublicFile, s.PrivateFile
	if pubName == "" {
		pubName = DefaultPublicFile
	}
	if privName == "" {
		privName = DefaultPrivateFile
	}

	dirs := []string{s.Dir}
	if s.Dir == "" {
		dirs = candidateDirs()
	}

	var lastErr error
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pub, err := os.ReadFile(filepath.Join(dir, pubName))
		if err != nil {
			lastErr = err
			continue
		}
		priv, err := os.ReadFile(filepath.Join(dir, privName))
		if err != nil {
			lastErr = err
			continue
		}
		return pub, priv, nil
	}
	if lastErr == nil {
		lastErr = fs.ErrNotExist
	}
	if errors.Is(lastErr, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s / %s not found in %v", ErrKeyLoad, pubName, privName, dirs)
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrKeyLoad, lastErr)
}

func candidateDirs() []string {
	var dirs []string
	if env := os.Getenv("JWKS_DIR"); env != "" {
		dirs = append(dirs, env)
	}
	return append(dirs, "config", filepath.Join("..", "config"))
}
