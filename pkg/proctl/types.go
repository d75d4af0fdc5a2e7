package proctl

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// ProcessStatus describes the state of the traced process after a wait.
// The concrete type is one of *Stopped, *Exited or *Signaled. Stopped
// is the only status from which a further resume is legal.
type ProcessStatus interface {
	processStatus()
	String() string
}

// Stopped indicates the traced process was halted by a signal. PC holds
// the instruction pointer value captured at the moment of the stop.
type Stopped struct {
	Signal sys.Signal
	PC     uint64
}

// Exited indicates the traced process exited normally with the given
// exit status.
type Exited struct {
	Status int
}

// Signaled indicates the traced process was terminated by a signal. No
// further interaction with the process is possible.
type Signaled struct {
	Signal sys.Signal
}

func (s *Stopped) processStatus()  {}
func (s *Exited) processStatus()   {}
func (s *Signaled) processStatus() {}

func (s *Stopped) String() string {
	return fmt.Sprintf("stopped with %s at %#x", signalName(s.Signal), s.PC)
}

func (s *Exited) String() string {
	return fmt.Sprintf("exited with status %d", s.Status)
}

func (s *Signaled) String() string {
	return fmt.Sprintf("terminated by %s", signalName(s.Signal))
}

// Terminal returns whether status means the process is gone and a new
// launch is required.
func Terminal(status ProcessStatus) bool {
	switch status.(type) {
	case *Exited, *Signaled:
		return true
	}
	return false
}

func signalName(sig sys.Signal) string {
	if name := sys.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// LaunchError indicates the target never became debuggable: either the
// executable could not be started, or its first stop was not the
// expected trap.
type LaunchError struct {
	Target string
	Err    error
}

func (le LaunchError) Error() string {
	return fmt.Sprintf("could not launch %s: %v", le.Target, le.Err)
}

func (le LaunchError) Unwrap() error { return le.Err }

// ControlError indicates a process-control operation on a live inferior
// failed.
type ControlError struct {
	Op  string
	Err error
}

func (ce ControlError) Error() string {
	return fmt.Sprintf("%s failed: %v", ce.Op, ce.Err)
}

func (ce ControlError) Unwrap() error { return ce.Err }

// ProcessExitedError indicates an operation was attempted on a process
// that has already terminated.
type ProcessExitedError struct {
	Pid int
}

func (pe ProcessExitedError) Error() string {
	return fmt.Sprintf("process %d has exited", pe.Pid)
}
