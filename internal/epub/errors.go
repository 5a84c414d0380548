package epub

import "fmt"

// AssemblyError means the document could not be built. It is always fatal
// for the run.
type AssemblyError struct {
	Op    string
	Cause error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble epub: %s: %v", e.Op, e.Cause)
}

func (e *AssemblyError) Unwrap() error {
	return e.Cause
}
