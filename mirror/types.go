package mirror

import (
	"os"
	"time"

	"site-deploy/filter"
)

// Config holds the settings for one mirror run.
type Config struct {
	// RemotePath is the absolute remote directory that mirrors the local root.
	RemotePath string

	// Exclude lists paths that are never transferred or deleted.
	Exclude *filter.Set

	// Delete removes remote paths that do not exist locally.
	Delete bool

	// Checksum compares file contents instead of size and modification time.
	Checksum bool

	// DryRun plans the run without changing the remote tree.
	DryRun bool
}

// Entry is one file or directory found by a scan.
type Entry struct {
	// Rel is the slash-separated path relative to the scanned root.
	Rel string

	Size    int64
	ModTime time.Time
	Mode    os.FileMode
	IsDir   bool

	// Protected marks a remote directory that holds excluded paths, directly
	// or further down. It cannot be removed without touching them.
	Protected bool
}

// Inventory maps relative paths to scanned entries.
type Inventory map[string]*Entry

// OperationType is the kind of change an operation makes.
type OperationType string

const (
	// OperationMkdir creates a remote directory.
	OperationMkdir OperationType = "mkdir"

	// OperationUpload writes a local file to the remote tree.
	OperationUpload OperationType = "upload"

	// OperationDelete removes a remote file or empty directory.
	OperationDelete OperationType = "delete"

	// OperationSkip records an unchanged file.
	OperationSkip OperationType = "skip"
)

// Operation is one planned step of a run.
type Operation struct {
	Type    OperationType
	Rel     string
	IsDir   bool
	Size    int64
	Mode    os.FileMode
	ModTime time.Time

	// Reason describes why the operation was planned.
	Reason string
}

// Result summarizes a run. For a dry run the counts describe what would
// have happened.
type Result struct {
	Created   int
	Uploaded  int
	Deleted   int
	Skipped   int
	BytesSent int64
	Duration  time.Duration
	DryRun    bool

	// Operations is the executed (or, for a dry run, planned) plan.
	Operations []*Operation

	// Kept lists remote directories absent locally that were not deleted
	// because they hold excluded paths.
	Kept []string
}

// Changed reports whether the run changed (or would change) the remote tree.
func (r *Result) Changed() bool {
	return r.Created+r.Uploaded+r.Deleted > 0
}
