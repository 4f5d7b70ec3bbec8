// Package process implements the process table: named child processes
// started from downloaded executables, with at most one live entry per name.
//
// Children are placed in their own process group on unix so that Stop and
// StopAll also reach anything they fork. Stop sends SIGTERM, waits for the
// configured timeout and then sends SIGKILL.
//
// KillByName is the out-of-band escape hatch for processes the table does not
// own, such as a tunnel client left behind by an earlier run.
package process
