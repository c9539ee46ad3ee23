package mirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"path"

	"github.com/go-git/go-billy/v5"
)

// Comparator decides whether a file present on both sides needs uploading.
type Comparator interface {
	HasChanged(ctx context.Context, local, remote *Entry) (bool, error)
}

// QuickComparator treats files as unchanged when size and modification time
// agree. Times are compared in whole seconds, the resolution SFTP carries.
type QuickComparator struct{}

func (QuickComparator) HasChanged(_ context.Context, local, remote *Entry) (bool, error) {
	if local.Size != remote.Size {
		return true, nil
	}
	return local.ModTime.Unix() != remote.ModTime.Unix(), nil
}

// ChecksumComparator compares SHA-256 digests of both copies. Files of
// different size are changed without reading either.
type ChecksumComparator struct {
	local  billy.Filesystem
	remote Remote
	root   string
}

// NewChecksumComparator compares files of local against the remote tree under root.
func NewChecksumComparator(local billy.Filesystem, remote Remote, root string) *ChecksumComparator {
	return &ChecksumComparator{local: local, remote: remote, root: root}
}

func (c *ChecksumComparator) HasChanged(ctx context.Context, local, remote *Entry) (bool, error) {
	if local.Size != remote.Size {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lf, err := c.local.Open(local.Rel)
	if err != nil {
		return false, fmt.Errorf("open local %s: %w", local.Rel, err)
	}
	defer lf.Close()
	localSum, err := digest(lf)
	if err != nil {
		return false, fmt.Errorf("read local %s: %w", local.Rel, err)
	}

	remotePath := path.Join(c.root, remote.Rel)
	rf, err := c.remote.Open(remotePath)
	if err != nil {
		return false, fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer rf.Close()
	remoteSum, err := digest(rf)
	if err != nil {
		return false, fmt.Errorf("read remote %s: %w", remotePath, err)
	}

	return !bytes.Equal(localSum, remoteSum), nil
}

func digest(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
