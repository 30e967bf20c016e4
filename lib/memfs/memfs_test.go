package memfs

import (
	"errors"
	"io/fs"
	"testing"
)

func TestFS(t *testing.T) {
	mfs, err := New(map[string]string{
		"index.html":          "<html></html>",
		"pkg/app.js":          "function archizoomInit() {}",
		"diagrams/system.svg": "<svg></svg>",
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := fs.ReadFile(mfs, "pkg/app.js")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "function archizoomInit() {}" {
		t.Fatalf("unexpected content: %q", b)
	}

	if _, err := mfs.Open("pkg/missing.js"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := mfs.Open("../escape.js"); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("expected fs.ErrInvalid, got %v", err)
	}

	// Ancestor directories exist without being declared, the root included.
	for _, dir := range []string{".", "pkg", "diagrams"} {
		fi, err := fs.Stat(mfs, dir)
		if err != nil {
			t.Fatal(err)
		}
		if !fi.IsDir() {
			t.Fatalf("expected %s to be a directory", dir)
		}
	}
	if _, err := fs.ReadFile(mfs, "pkg"); err == nil {
		t.Fatal("expected reading a directory to fail")
	}
}

func TestFSInvalidPath(t *testing.T) {
	if _, err := New(map[string]string{"../outside": "x"}); err == nil {
		t.Fatal("expected an invalid path error")
	}
}
