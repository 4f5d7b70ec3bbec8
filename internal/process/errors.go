package process

import "fmt"

// SpawnError is returned when the OS cannot create a child process.
type SpawnError struct {
	Name   string
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s (%s): %v", e.Name, e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
