package proctl

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/go-delve/tinydbg/pkg/logflags"
)

// Struct representing the traced process. Holds onto the pid and
// process handle, plus the breakpoints installed into this particular
// process instance. At most one DebuggedProcess is live at a time; it
// is owned by the session controller and must be killed and reaped
// before being dropped.
type DebuggedProcess struct {
	Pid     int
	Process *os.Process

	// installed maps a breakpoint address to the original instruction
	// byte the trap replaced, for this process instance only. A fresh
	// process starts with every table entry pending.
	installed map[uint64]byte
	exited    bool
	logger    *logrus.Entry
}

// Launch creates and begins debugging a new process running path with
// args. The child requests tracing before exec, so the debugger regains
// control before the target's first instruction runs; that first stop
// must be SIGTRAP or the child is killed and a LaunchError returned
// with no handle.
//
// Every entry of table is installed into the fresh process image before
// Launch returns, so no target instruction executes with a breakpoint
// missing. If installation fails the live handle is returned together
// with the error, distinguishing "no process" from "process exists but
// breakpoints could not be installed".
func Launch(path string, args []string, table *BreakpointTable) (*DebuggedProcess, error) {
	proc := exec.Command(path)
	proc.Args = append([]string{path}, args...)
	proc.Stdin = os.Stdin
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr
	proc.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := proc.Start(); err != nil {
		return nil, LaunchError{Target: path, Err: err}
	}

	dbp := &DebuggedProcess{
		Pid:       proc.Process.Pid,
		Process:   proc.Process,
		installed: make(map[uint64]byte),
		logger:    logflags.ProctlLogger(),
	}

	status, err := dbp.waitForStatus(0)
	if err != nil {
		dbp.KillAndReap()
		return nil, LaunchError{Target: path, Err: err}
	}
	stopped, ok := status.(*Stopped)
	if !ok || stopped.Signal != sys.SIGTRAP {
		dbp.KillAndReap()
		return nil, LaunchError{Target: path, Err: fmt.Errorf("unexpected initial status: %s", status)}
	}

	dbp.logger.Debugf("launched pid %d, initial stop at %#x", dbp.Pid, stopped.PC)

	if err := dbp.installBreakpoints(table); err != nil {
		return dbp, err
	}
	return dbp, nil
}

// Continue resumes the traced process until its next stop and returns
// the new status. Any breakpoint at the current stop site is stepped
// over first: the original byte is restored, the PC rewound onto it,
// one instruction stepped, and the trap re-installed. Skipping that
// sequence would either re-trap on the same address forever or execute
// the trap byte in place of the original instruction. Table entries not
// yet installed in this process instance are installed before the
// resume.
func (dbp *DebuggedProcess) Continue(table *BreakpointTable) (ProcessStatus, error) {
	if dbp.exited {
		return nil, ProcessExitedError{Pid: dbp.Pid}
	}

	status, err := dbp.stepOverBreakpoint()
	if err != nil {
		return nil, err
	}
	if status != nil {
		// The single step terminated the process.
		return status, nil
	}

	if err := dbp.installBreakpoints(table); err != nil {
		return nil, err
	}

	if err := sys.PtraceCont(dbp.Pid, 0); err != nil {
		return nil, ControlError{Op: "cont", Err: err}
	}
	return dbp.waitForStatus(0)
}

// installBreakpoints installs every table entry not yet present in this
// process instance.
func (dbp *DebuggedProcess) installBreakpoints(table *BreakpointTable) error {
	for _, bp := range table.All() {
		if _, ok := dbp.installed[bp.Addr]; ok {
			continue
		}
		orig, err := dbp.installByte(bp.Addr)
		if err != nil {
			return fmt.Errorf("could not install %s: %w", bp, err)
		}
		dbp.installed[bp.Addr] = orig
		dbp.logger.Debugf("installed %s, original byte %#x", bp, orig)
	}
	return nil
}

// stepOverBreakpoint executes the original instruction at the current
// stop site if that site is an installed breakpoint whose trap has
// fired. The trap leaves the PC one byte past the trap instruction, so
// the site is PC-1. Returns a non-nil status if the process terminated
// during the step.
func (dbp *DebuggedProcess) stepOverBreakpoint() (ProcessStatus, error) {
	regs, err := dbp.Registers()
	if err != nil {
		return nil, err
	}
	addr := regs.PC() - 1
	orig, ok := dbp.installed[addr]
	if !ok {
		return nil, nil
	}

	if err := dbp.restoreByte(addr, orig); err != nil {
		return nil, err
	}
	delete(dbp.installed, addr)
	if err := regs.SetPC(dbp.Pid, addr); err != nil {
		return nil, ControlError{Op: "setregs", Err: err}
	}

	// A signal can arrive before the stepped instruction executes, in
	// which case the stop reports that signal with the PC still at the
	// breakpoint address. The runtime's SIGURG preemption signal does
	// this routinely. Re-deliver the signal and step again; putting the
	// trap back under the unmoved PC would fire it a second time with
	// no target progress.
	deliver := 0
	for {
		if err := ptraceSingleStep(dbp.Pid, deliver); err != nil {
			return nil, ControlError{Op: "singlestep", Err: err}
		}
		status, err := dbp.waitForStatus(0)
		if err != nil {
			return nil, err
		}
		stopped, ok := status.(*Stopped)
		if !ok {
			// The step (or the delivered signal) terminated the
			// process.
			return status, nil
		}
		if stopped.Signal == sys.SIGTRAP {
			break
		}
		dbp.logger.Debugf("%s interrupted step at %#x, re-delivering", signalName(stopped.Signal), addr)
		deliver = int(stopped.Signal)
	}

	reinstalled, err := dbp.installByte(addr)
	if err != nil {
		return nil, err
	}
	dbp.installed[addr] = reinstalled
	return nil, nil
}

// Poll performs a non-blocking wait on the traced process. It returns
// (nil, nil) when the process state has not changed.
func (dbp *DebuggedProcess) Poll() (ProcessStatus, error) {
	return dbp.waitForStatus(sys.WNOHANG)
}

func (dbp *DebuggedProcess) waitForStatus(options int) (ProcessStatus, error) {
	wpid, ws, err := wait(dbp.Pid, options)
	if err != nil {
		return nil, ControlError{Op: "wait4", Err: err}
	}
	if wpid == 0 {
		return nil, nil
	}
	switch {
	case ws.Exited():
		dbp.exited = true
		return &Exited{Status: ws.ExitStatus()}, nil
	case ws.Signaled():
		dbp.exited = true
		return &Signaled{Signal: ws.Signal()}, nil
	case ws.Stopped():
		regs, err := dbp.Registers()
		if err != nil {
			return nil, err
		}
		return &Stopped{Signal: ws.StopSignal(), PC: regs.PC()}, nil
	}
	// A process under simple trace supervision can only report the
	// three shapes above; anything else means our bookkeeping is gone
	// and no further operation can be trusted.
	panic(fmt.Sprintf("wait4 returned unexpected status %#x for pid %d", int(*ws), wpid))
}

// KillAndReap terminates the traced process and reaps it so no zombie
// is left behind. It must be called before dropping the handle on every
// exit path. Calling it on an already-dead process is a no-op.
func (dbp *DebuggedProcess) KillAndReap() error {
	if dbp.exited {
		return nil
	}
	if err := sys.Kill(dbp.Pid, sys.SIGKILL); err != nil {
		if err == sys.ESRCH {
			dbp.exited = true
			return nil
		}
		return ControlError{Op: "kill", Err: err}
	}
	for {
		wpid, ws, err := wait(dbp.Pid, 0)
		if err != nil {
			if err == sys.ECHILD {
				break
			}
			return ControlError{Op: "wait4", Err: err}
		}
		if wpid == dbp.Pid && (ws.Exited() || ws.Signaled()) {
			break
		}
		// The kill can race a pending trap stop; resume until the
		// termination is observed.
		if ws.Stopped() {
			sys.PtraceCont(dbp.Pid, int(sys.SIGKILL))
		}
	}
	dbp.exited = true
	dbp.logger.Debugf("killed and reaped pid %d", dbp.Pid)
	return nil
}

// RequestManualStop sends a stop signal to the traced process. The stop
// is observed by whichever wait is in flight and surfaces as a regular
// Stopped status, not as a separate cancellation path.
func (dbp *DebuggedProcess) RequestManualStop() error {
	if dbp.exited {
		return ProcessExitedError{Pid: dbp.Pid}
	}
	if err := sys.Kill(dbp.Pid, sys.SIGSTOP); err != nil {
		return ControlError{Op: "kill", Err: err}
	}
	return nil
}

// Alive returns whether the wrapped process can still be interacted
// with.
func (dbp *DebuggedProcess) Alive() bool {
	return !dbp.exited
}

// Registers returns the current general register values of the traced
// process.
func (dbp *DebuggedProcess) Registers() (Registers, error) {
	regs, err := registers(dbp.Pid)
	if err != nil {
		return nil, ControlError{Op: "getregs", Err: err}
	}
	return regs, nil
}

// CurrentPC returns the current instruction pointer.
func (dbp *DebuggedProcess) CurrentPC() (uint64, error) {
	regs, err := dbp.Registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// BreakpointInstalled returns whether a trap byte is currently
// installed at addr in this process instance.
func (dbp *DebuggedProcess) BreakpointInstalled(addr uint64) bool {
	_, ok := dbp.installed[addr]
	return ok
}

func wait(pid, options int) (int, *sys.WaitStatus, error) {
	var status sys.WaitStatus
	wpid, err := sys.Wait4(pid, &status, sys.WALL|options, nil)
	return wpid, &status, err
}
