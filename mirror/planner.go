package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"site-deploy/syncerr"
)

// Plan is the ordered list of operations that makes the remote tree match
// the local one.
type Plan struct {
	Operations []*Operation

	// Kept lists remote-only directories left in place because they hold
	// excluded paths.
	Kept []string
}

// Stats counts the operations of p by type.
func (p *Plan) Stats() Result {
	var r Result
	for _, op := range p.Operations {
		switch op.Type {
		case OperationMkdir:
			r.Created++
		case OperationUpload:
			r.Uploaded++
			r.BytesSent += op.Size
		case OperationDelete:
			r.Deleted++
		case OperationSkip:
			r.Skipped++
		}
	}
	return r
}

// Planner turns a local and a remote inventory into a Plan.
type Planner struct {
	comparator Comparator
}

// NewPlanner creates a planner that uses comp for files present on both sides.
func NewPlanner(comp Comparator) *Planner {
	return &Planner{comparator: comp}
}

// Plan orders operations so that each can run on its own: deletes first,
// deepest paths before their parents; then directory creation, parents
// before children; then uploads; skips last.
//
// A remote entry whose type differs from the local one is always replaced,
// even when deleteExtra is false.
func (p *Planner) Plan(ctx context.Context, local, remote Inventory, deleteExtra bool) (*Plan, error) {
	var (
		deletes = map[string]*Operation{}
		mkdirs  []*Operation
		uploads []*Operation
		skips   []*Operation
		kept    []string
	)

	addDelete := func(e *Entry, reason string) {
		if _, ok := deletes[e.Rel]; ok {
			return
		}
		deletes[e.Rel] = &Operation{Type: OperationDelete, Rel: e.Rel, IsDir: e.IsDir, Size: e.Size, Reason: reason}
	}

	for _, rel := range sortedKeys(local) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := local[rel]
		r, exists := remote[rel]

		if l.IsDir {
			switch {
			case !exists:
				mkdirs = append(mkdirs, newOperation(OperationMkdir, l, "new directory"))
			case !r.IsDir:
				addDelete(r, "replaced by directory")
				mkdirs = append(mkdirs, newOperation(OperationMkdir, l, "replaces file"))
			}
			continue
		}

		switch {
		case !exists:
			uploads = append(uploads, newOperation(OperationUpload, l, "new file"))
		case r.IsDir:
			if r.Protected {
				return nil, syncerr.Transfer("replace directory", rel,
					errors.New("remote directory holds excluded paths"))
			}
			addDelete(r, "replaced by file")
			prefix := rel + "/"
			for remoteRel, e := range remote {
				if strings.HasPrefix(remoteRel, prefix) {
					addDelete(e, "replaced by file")
				}
			}
			uploads = append(uploads, newOperation(OperationUpload, l, "replaces directory"))
		default:
			changed, err := p.comparator.HasChanged(ctx, l, r)
			if err != nil {
				return nil, syncerr.Transfer("compare", rel, err)
			}
			if changed {
				uploads = append(uploads, newOperation(OperationUpload, l, "modified"))
			} else {
				skips = append(skips, newOperation(OperationSkip, l, "unchanged"))
			}
		}
	}

	if deleteExtra {
		for rel, r := range remote {
			if _, ok := local[rel]; ok {
				continue
			}
			if r.IsDir && r.Protected {
				kept = append(kept, rel)
				continue
			}
			addDelete(r, "extra remote file")
		}
	}

	plan := &Plan{}
	plan.Operations = append(plan.Operations, orderDeletes(deletes)...)
	plan.Operations = append(plan.Operations, mkdirs...)
	plan.Operations = append(plan.Operations, uploads...)
	plan.Operations = append(plan.Operations, skips...)
	sort.Strings(kept)
	plan.Kept = kept
	return plan, nil
}

func newOperation(t OperationType, e *Entry, reason string) *Operation {
	return &Operation{
		Type:    t,
		Rel:     e.Rel,
		IsDir:   e.IsDir,
		Size:    e.Size,
		Mode:    e.Mode,
		ModTime: e.ModTime,
		Reason:  reason,
	}
}

func orderDeletes(deletes map[string]*Operation) []*Operation {
	ops := make([]*Operation, 0, len(deletes))
	for _, op := range deletes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		di, dj := strings.Count(ops[i].Rel, "/"), strings.Count(ops[j].Rel, "/")
		if di != dj {
			return di > dj
		}
		return ops[i].Rel > ops[j].Rel
	})
	return ops
}

func sortedKeys(inv Inventory) []string {
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (op *Operation) String() string {
	return fmt.Sprintf("%s %s (%s)", op.Type, op.Rel, op.Reason)
}
