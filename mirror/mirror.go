// Package mirror makes a remote directory match a local one.
//
// A run has three phases. The inventory phase walks both trees, leaving out
// excluded paths. The planning phase compares the two inventories and orders
// the deletes, directory creations and uploads needed. The execution phase
// applies them one at a time and stops at the first failure.
//
// Excluded paths are never transferred and never deleted. After a successful
// run every other local file exists remotely with the same contents and, when
// Config.Delete is set, no other remote file remains. A second run without
// local changes plans only skips.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"k8s.io/klog/v2"

	"site-deploy/syncerr"
)

// Run mirrors local onto cfg.RemotePath of remote.
func Run(ctx context.Context, cfg Config, local billy.Filesystem, remote Remote) (*Result, error) {
	start := time.Now()

	localInv, err := ScanLocal(ctx, local, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to scan local tree: %w", err)
	}
	remoteInv, err := ScanRemote(ctx, remote, cfg.RemotePath, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to scan remote tree: %w", err)
	}
	klog.V(2).Infof("scanned %d local and %d remote entries", len(localInv), len(remoteInv))

	var comp Comparator = QuickComparator{}
	if cfg.Checksum {
		comp = NewChecksumComparator(local, remote, cfg.RemotePath)
	}
	plan, err := NewPlanner(comp).Plan(ctx, localInv, remoteInv, cfg.Delete)
	if err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	for _, rel := range plan.Kept {
		klog.Warningf("cannot delete non-empty directory: %s", rel)
	}

	if cfg.DryRun {
		result := plan.Stats()
		result.DryRun = true
		result.Operations = plan.Operations
		result.Kept = plan.Kept
		for _, op := range plan.Operations {
			if op.Type != OperationSkip {
				klog.Infof("would %s", op)
			}
		}
		result.Duration = time.Since(start)
		return &result, nil
	}

	if err := remote.MkdirAll(cfg.RemotePath); err != nil {
		return nil, syncerr.Transfer("mkdir", cfg.RemotePath, err)
	}

	result, err := NewExecutor(local, remote, cfg.RemotePath).Execute(ctx, plan)
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("failed to apply plan: %w", err)
	}
	return result, nil
}
