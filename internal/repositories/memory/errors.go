package memory

import "fmt"

// repoError implements repositories.RepositoryError for the in-memory registry.
type repoError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *repoError) IsConflict() bool    { return e != nil && e.conflict }
func (e *repoError) IsUnavailable() bool { return false }

func notFoundError(kind, id string) error {
	return &repoError{msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func conflictError(kind, id string) error {
	return &repoError{msg: fmt.Sprintf("%s %s modified concurrently", kind, id), conflict: true}
}
