package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"k8s.io/klog/v2"

	"site-deploy/filter"
	"site-deploy/syncerr"
)

// ScanLocal walks the local source tree. Excluded directories are not
// entered, and anything that is neither a directory nor a regular file is
// skipped.
func ScanLocal(ctx context.Context, fs billy.Filesystem, exclude *filter.Set) (Inventory, error) {
	inv := Inventory{}
	if err := scanLocalDir(ctx, fs, "", exclude, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func scanLocalDir(ctx context.Context, fs billy.Filesystem, dir string, exclude *filter.Set, inv Inventory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := dir
	if name == "" {
		name = "."
	}
	infos, err := fs.ReadDir(name)
	if err != nil {
		return syncerr.Transfer("scan local", fs.Join(fs.Root(), dir), err)
	}

	for _, info := range infos {
		rel := path.Join(dir, info.Name())
		switch {
		case info.IsDir():
			if exclude.Excluded(rel, true) {
				klog.V(3).Infof("excluding local directory %s", rel)
				continue
			}
			inv[rel] = &Entry{Rel: rel, IsDir: true, Mode: info.Mode(), ModTime: info.ModTime()}
			if err := scanLocalDir(ctx, fs, rel, exclude, inv); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if exclude.Excluded(rel, false) {
				klog.V(3).Infof("excluding local file %s", rel)
				continue
			}
			inv[rel] = &Entry{Rel: rel, Size: info.Size(), Mode: info.Mode(), ModTime: info.ModTime()}
		default:
			klog.V(2).Infof("skipping non-regular file %s", rel)
		}
	}
	return nil
}

// ScanRemote walks the remote tree under root. A missing root is an empty
// inventory. Excluded paths are left out, and every directory above one is
// marked protected.
func ScanRemote(ctx context.Context, remote Remote, root string, exclude *filter.Set) (Inventory, error) {
	info, err := remote.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		klog.V(2).Infof("remote path %s does not exist yet", root)
		return Inventory{}, nil
	case err != nil:
		return nil, syncerr.Transfer("scan remote", root, err)
	case !info.IsDir():
		return nil, syncerr.Transfer("scan remote", root, fmt.Errorf("not a directory"))
	}

	inv := Inventory{}
	if _, err := scanRemoteDir(ctx, remote, root, "", exclude, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// scanRemoteDir reports whether dir holds an excluded path.
func scanRemoteDir(ctx context.Context, remote Remote, root, dir string, exclude *filter.Set, inv Inventory) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full := path.Join(root, dir)
	infos, err := remote.ReadDir(full)
	if err != nil {
		return false, syncerr.Transfer("scan remote", full, err)
	}

	protected := false
	for _, info := range infos {
		rel := path.Join(dir, info.Name())
		if exclude.Excluded(rel, info.IsDir()) {
			klog.V(3).Infof("excluding remote path %s", rel)
			protected = true
			continue
		}

		entry := &Entry{Rel: rel, Size: info.Size(), Mode: info.Mode(), ModTime: info.ModTime(), IsDir: info.IsDir()}
		inv[rel] = entry
		if !entry.IsDir {
			continue
		}
		sub, err := scanRemoteDir(ctx, remote, root, rel, exclude, inv)
		if err != nil {
			return false, err
		}
		if sub {
			entry.Protected = true
			protected = true
		}
	}
	return protected, nil
}
