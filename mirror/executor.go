package mirror

import (
	"context"
	"path"

	"github.com/go-git/go-billy/v5"
	"k8s.io/klog/v2"

	"site-deploy/syncerr"
)

// Executor applies a Plan to the remote tree, one operation at a time.
type Executor struct {
	local  billy.Filesystem
	remote Remote
	root   string
}

// NewExecutor creates an executor that reads from local and writes under
// root on remote.
func NewExecutor(local billy.Filesystem, remote Remote, root string) *Executor {
	return &Executor{local: local, remote: remote, root: root}
}

// Execute runs the operations of plan in order and stops at the first
// failure. The returned Result counts what was done before it.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Operations: plan.Operations, Kept: plan.Kept}

	for _, op := range plan.Operations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		remotePath := path.Join(e.root, op.Rel)
		switch op.Type {
		case OperationDelete:
			if err := e.delete(op, remotePath); err != nil {
				return result, err
			}
			result.Deleted++
		case OperationMkdir:
			if err := e.remote.Mkdir(remotePath, op.Mode.Perm()); err != nil {
				return result, syncerr.Transfer("mkdir", remotePath, err)
			}
			klog.V(2).Infof("created directory %s", remotePath)
			result.Created++
		case OperationUpload:
			n, err := e.upload(op, remotePath)
			result.BytesSent += n
			if err != nil {
				return result, err
			}
			result.Uploaded++
		case OperationSkip:
			result.Skipped++
		}
	}
	return result, nil
}

func (e *Executor) delete(op *Operation, remotePath string) error {
	var err error
	if op.IsDir {
		err = e.remote.RemoveDirectory(remotePath)
	} else {
		err = e.remote.Remove(remotePath)
	}
	if err != nil {
		return syncerr.Transfer("delete", remotePath, err)
	}
	klog.V(2).Infof("deleted %s (%s)", remotePath, op.Reason)
	return nil
}

func (e *Executor) upload(op *Operation, remotePath string) (int64, error) {
	src, err := e.local.Open(op.Rel)
	if err != nil {
		return 0, syncerr.Transfer("open", e.local.Join(e.local.Root(), op.Rel), err)
	}
	defer src.Close()

	n, err := e.remote.Put(remotePath, src, op.Mode.Perm(), op.ModTime)
	if err != nil {
		return n, syncerr.Transfer("upload", remotePath, err)
	}
	klog.V(2).Infof("uploaded %s (%s, %d bytes)", remotePath, op.Reason, n)
	return n, nil
}
