package runner

import "fmt"

// SpawnError means the stage program could not be started at all: missing,
// not executable, or the pseudo-terminals could not be allocated. It is
// distinct from a program that ran and exited non-zero.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TransportError is an unexpected failure while reading the child's output.
// The invocation is abandoned; the child has been killed and reaped.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
