package mirror

import (
	"errors"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"k8s.io/klog/v2"
)

// Remote is the remote filesystem a run mirrors into. Paths are absolute and
// slash-separated.
type Remote interface {
	Stat(p string) (os.FileInfo, error)
	ReadDir(p string) ([]os.FileInfo, error)
	Open(p string) (io.ReadCloser, error)
	Mkdir(p string, perm os.FileMode) error
	MkdirAll(p string) error
	Remove(p string) error
	RemoveDirectory(p string) error

	// Put replaces the file at p with the contents of r and returns the
	// number of bytes written. Readers of p see either the old or the new
	// contents, never a partial file.
	Put(p string, r io.Reader, perm os.FileMode, mtime time.Time) (int64, error)
}

// SFTPRemote implements Remote over an SFTP client.
type SFTPRemote struct {
	client *sftp.Client
}

// NewSFTPRemote wraps client.
func NewSFTPRemote(client *sftp.Client) *SFTPRemote {
	return &SFTPRemote{client: client}
}

func (s *SFTPRemote) Stat(p string) (os.FileInfo, error) {
	return s.client.Stat(p)
}

func (s *SFTPRemote) ReadDir(p string) ([]os.FileInfo, error) {
	return s.client.ReadDir(p)
}

func (s *SFTPRemote) Open(p string) (io.ReadCloser, error) {
	return s.client.Open(p)
}

func (s *SFTPRemote) Mkdir(p string, perm os.FileMode) error {
	if err := s.client.Mkdir(p); err != nil {
		return err
	}
	if perm != 0 {
		if err := s.client.Chmod(p, perm); err != nil {
			klog.Warningf("failed to set permissions on %s: %v", p, err)
		}
	}
	return nil
}

func (s *SFTPRemote) MkdirAll(p string) error {
	return s.client.MkdirAll(p)
}

func (s *SFTPRemote) Remove(p string) error {
	return s.client.Remove(p)
}

func (s *SFTPRemote) RemoveDirectory(p string) error {
	return s.client.RemoveDirectory(p)
}

// Put writes to a hidden temporary sibling of p and renames it into place.
// Failing to set permissions or times is logged, not returned.
func (s *SFTPRemote) Put(p string, r io.Reader, perm os.FileMode, mtime time.Time) (int64, error) {
	dir, name := path.Split(p)
	tmp := path.Join(dir, "."+name+"."+uuid.NewString()+".tmp")

	f, err := s.client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.rename(tmp, p)
	}
	if err != nil {
		if rmErr := s.client.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			klog.Warningf("failed to remove temporary file %s: %v", tmp, rmErr)
		}
		return n, err
	}

	if perm != 0 {
		if err := s.client.Chmod(p, perm); err != nil {
			klog.Warningf("failed to set permissions on %s: %v", p, err)
		}
	}
	if err := s.client.Chtimes(p, mtime, mtime); err != nil {
		klog.Warningf("failed to set times on %s: %v", p, err)
	}
	return n, nil
}

// rename moves tmp over p, preferring the atomic posix-rename extension.
func (s *SFTPRemote) rename(tmp, p string) error {
	if err := s.client.PosixRename(tmp, p); err == nil {
		return nil
	}
	if err := s.client.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.client.Rename(tmp, p)
}
