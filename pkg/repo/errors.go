package repo

import "errors"

var (
	// ErrPathTraversal is returned when a requested path escapes the
	// project root after normalization.
	ErrPathTraversal = errors.New("path escapes project root")

	// ErrPathNotFound is returned when a requested path does not exist
	// within the project.
	ErrPathNotFound = errors.New("path not found in project")

	// ErrNotTextFile is returned when file content is requested for a
	// binary or oversized file.
	ErrNotTextFile = errors.New("file is not indexable text")
)
