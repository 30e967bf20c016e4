// Package memfs provides an fs.FS held entirely in memory, for laying out
// pages and viewer bundles where no real directory exists: script
// environments and tests.
package memfs

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"time"
)

type FS struct {
	files map[string]*file
}

type file struct {
	name    string
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// New builds a file system from path to contents. Every ancestor directory
// is synthesized, the root included, so the result walks like a real tree.
func New(files map[string]string) (*FS, error) {
	m := &FS{files: make(map[string]*file)}
	m.addDir(".")
	for p, s := range files {
		p = path.Clean(p)
		if p == "." || !fs.ValidPath(p) {
			return nil, fmt.Errorf("invalid memfs path %q", p)
		}
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			m.addDir(dir)
		}
		m.files[p] = &file{
			name:    path.Base(p),
			data:    []byte(s),
			mode:    0644,
			modTime: time.Now(),
		}
	}
	return m, nil
}

func (m *FS) addDir(p string) {
	if _, ok := m.files[p]; !ok {
		m.files[p] = &file{
			name:    path.Base(p),
			mode:    fs.ModeDir | 0755,
			modTime: time.Now(),
		}
	}
}

func (m *FS) Open(name string) (fs.File, error) {
	f, err := m.lookup("open", name)
	if err != nil {
		return nil, err
	}
	return &handle{file: f, r: bytes.NewReader(f.data)}, nil
}

// ReadFile skips the handle machinery; fs.ReadFile prefers it.
func (m *FS) ReadFile(name string) ([]byte, error) {
	f, err := m.lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	if f.mode.IsDir() {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	return append([]byte(nil), f.data...), nil
}

func (m *FS) lookup(op, name string) (*file, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}

type handle struct {
	*file
	r *bytes.Reader
}

func (h *handle) Stat() (fs.FileInfo, error) { return h.file, nil }

func (h *handle) Read(b []byte) (int, error) {
	if h.mode.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: h.name, Err: fs.ErrInvalid}
	}
	return h.r.Read(b)
}

func (h *handle) Close() error { return nil }

func (f *file) Name() string       { return f.name }
func (f *file) Size() int64        { return int64(len(f.data)) }
func (f *file) Mode() fs.FileMode  { return f.mode }
func (f *file) ModTime() time.Time { return f.modTime }
func (f *file) IsDir() bool        { return f.mode.IsDir() }
func (f *file) Sys() interface{}   { return nil }
