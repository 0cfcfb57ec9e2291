package engine

import "fmt"

// DirectoryCreationError reports that the session subdirectory could not
// be created under the output directory.
type DirectoryCreationError struct {
	Path string
	Err  error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("failed to create session directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error {
	return e.Err
}

// LeakError reports that original values were still present in the text
// after substitution. The run aborts and commits nothing rather than
// persisting output that exposes them. The values themselves are never
// carried in the error.
type LeakError struct {
	Count int
}

func (e *LeakError) Error() string {
	return fmt.Sprintf("%d original values remain in the anonymized text", e.Count)
}

// FilesystemError reports a failure reading or writing a session artifact.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
