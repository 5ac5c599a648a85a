package harvest

import "errors"

var (
	// ErrSourceFileInvalid marks an input CSV that is unreadable or lacks a
	// tweet_id column. The file is skipped.
	ErrSourceFileInvalid = errors.New("invalid source file")
	// ErrNoBatches means the input root has no batch subdirectories.
	ErrNoBatches = errors.New("no batch directories in input")
)
