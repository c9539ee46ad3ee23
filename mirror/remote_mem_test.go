package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memRemote is an in-memory Remote. Like SFTP it keeps modification times
// in whole seconds.
type memRemote struct {
	files   map[string]*memFile
	putErrs map[string]error
	puts    int
	removes int
}

type memFile struct {
	data  []byte
	isDir bool
	mode  os.FileMode
	mtime time.Time
}

type memInfo struct {
	name string
	file *memFile
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return int64(len(i.file.data)) }
func (i memInfo) ModTime() time.Time { return i.file.mtime }
func (i memInfo) IsDir() bool        { return i.file.isDir }
func (i memInfo) Sys() interface{}   { return nil }
func (i memInfo) Mode() os.FileMode {
	if i.file.isDir {
		return os.ModeDir | i.file.mode
	}
	return i.file.mode
}

func newMemRemote() *memRemote {
	return &memRemote{
		files:   map[string]*memFile{"/": {isDir: true, mode: 0o755}},
		putErrs: map[string]error{},
	}
}

func notExist(op, p string) error {
	return &os.PathError{Op: op, Path: p, Err: os.ErrNotExist}
}

func (m *memRemote) Stat(p string) (os.FileInfo, error) {
	p = path.Clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil, notExist("stat", p)
	}
	return memInfo{name: path.Base(p), file: f}, nil
}

func (m *memRemote) children(p string) []string {
	var names []string
	for k := range m.files {
		if k != p && path.Dir(k) == p {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (m *memRemote) ReadDir(p string) ([]os.FileInfo, error) {
	p = path.Clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil, notExist("readdir", p)
	}
	if !f.isDir {
		return nil, fmt.Errorf("readdir %s: not a directory", p)
	}
	var infos []os.FileInfo
	for _, k := range m.children(p) {
		infos = append(infos, memInfo{name: path.Base(k), file: m.files[k]})
	}
	return infos, nil
}

func (m *memRemote) Open(p string) (io.ReadCloser, error) {
	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, notExist("open", p)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (m *memRemote) Mkdir(p string, perm os.FileMode) error {
	p = path.Clean(p)
	if _, ok := m.files[p]; ok {
		return &os.PathError{Op: "mkdir", Path: p, Err: os.ErrExist}
	}
	parent, ok := m.files[path.Dir(p)]
	if !ok || !parent.isDir {
		return notExist("mkdir", p)
	}
	m.files[p] = &memFile{isDir: true, mode: perm}
	return nil
}

func (m *memRemote) MkdirAll(p string) error {
	p = path.Clean(p)
	if f, ok := m.files[p]; ok {
		if !f.isDir {
			return fmt.Errorf("mkdir %s: not a directory", p)
		}
		return nil
	}
	if err := m.MkdirAll(path.Dir(p)); err != nil {
		return err
	}
	return m.Mkdir(p, 0o755)
}

func (m *memRemote) Remove(p string) error {
	p = path.Clean(p)
	f, ok := m.files[p]
	if !ok {
		return notExist("remove", p)
	}
	if f.isDir {
		return fmt.Errorf("remove %s: is a directory", p)
	}
	delete(m.files, p)
	m.removes++
	return nil
}

func (m *memRemote) RemoveDirectory(p string) error {
	p = path.Clean(p)
	f, ok := m.files[p]
	if !ok {
		return notExist("rmdir", p)
	}
	if !f.isDir {
		return fmt.Errorf("rmdir %s: not a directory", p)
	}
	if len(m.children(p)) > 0 {
		return fmt.Errorf("rmdir %s: directory not empty", p)
	}
	delete(m.files, p)
	m.removes++
	return nil
}

func (m *memRemote) Put(p string, r io.Reader, perm os.FileMode, mtime time.Time) (int64, error) {
	p = path.Clean(p)
	if err := m.putErrs[p]; err != nil {
		return 0, err
	}
	parent, ok := m.files[path.Dir(p)]
	if !ok || !parent.isDir {
		return 0, notExist("put", p)
	}
	if f, ok := m.files[p]; ok && f.isDir {
		return 0, fmt.Errorf("put %s: is a directory", p)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.files[p] = &memFile{data: data, mode: perm, mtime: time.Unix(mtime.Unix(), 0)}
	m.puts++
	return int64(len(data)), nil
}

// seed creates a remote file under root with the given contents.
func (m *memRemote) seed(t *testing.T, root, rel, content string) {
	t.Helper()
	p := path.Join(root, rel)
	require.NoError(t, m.MkdirAll(path.Dir(p)))
	_, err := m.Put(p, strings.NewReader(content), 0o644, time.Now())
	require.NoError(t, err)
}

// tree returns the remote tree under root as rel -> contents. Directories
// appear with a trailing slash and empty contents.
func (m *memRemote) tree(root string) map[string]string {
	root = path.Clean(root)
	out := map[string]string{}
	for k, f := range m.files {
		if !strings.HasPrefix(k, root+"/") {
			continue
		}
		rel := strings.TrimPrefix(k, root+"/")
		if f.isDir {
			out[rel+"/"] = ""
		} else {
			out[rel] = string(f.data)
		}
	}
	return out
}

var errDiskFull = errors.New("no space left on device")
