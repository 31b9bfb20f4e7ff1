// Package blob guarda los blobs subidos (fotos de profile) en un directorio
// local, con escritura atómica.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dropDatabas3/littlejohn/internal/util/atomicwrite"
)

var (
	ErrNotFound = errors.New("blob: not found")
	ErrBadPath  = errors.New("blob: invalid path")
)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// clean valida que p sea un path relativo sin escapes ("a/b.jpg").
func (s *Store) clean(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	cp := path.Clean(p)
	if cp == "." || cp == ".." || strings.HasPrefix(cp, "../") || strings.Contains(cp, "\\") {
		return "", ErrBadPath
	}
	return filepath.Join(s.dir, filepath.FromSlash(cp)), nil
}

// Put escribe el blob completo. Sobrescribir es válido: la foto de profile
// vive siempre en el mismo path por usuario.
func (s *Store) Put(p string, data []byte) error {
	fp, err := s.clean(p)
	if err != nil {
		return err
	}
	if err := atomicwrite.WriteFile(fp, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", p, err)
	}
	return nil
}

// Get lee el blob completo.
func (s *Store) Get(p string) ([]byte, error) {
	fp, err := s.clean(p)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(fp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Exists reporta si el blob está presente.
func (s *Store) Exists(p string) bool {
	fp, err := s.clean(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(fp)
	return err == nil
}
