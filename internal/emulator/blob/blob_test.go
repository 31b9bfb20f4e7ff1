package blob

import (
	"errors"
	"testing"
)

func TestPutGet(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Put("profile_images/u1.jpg", []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("put: %v", err)
	}
	b, err := s.Get("profile_images/u1.jpg")
	if err != nil || len(b) != 2 {
		t.Fatalf("get: %v %v", b, err)
	}
	if !s.Exists("profile_images/u1.jpg") {
		t.Fatal("expected exists")
	}
	if _, err := s.Get("profile_images/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: got %v", err)
	}
}

func TestBadPaths(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, p := range []string{"..", "../x", "a/../../etc/passwd", "a\\b"} {
		if err := s.Put(p, []byte("x")); !errors.Is(err, ErrBadPath) {
			t.Fatalf("path %q: got %v, want ErrBadPath", p, err)
		}
	}
}

func TestOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	_ = s.Put("p/u.jpg", []byte("old"))
	if err := s.Put("p/u.jpg", []byte("new")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, _ := s.Get("p/u.jpg")
	if string(b) != "new" {
		t.Fatalf("got %q", b)
	}
}
