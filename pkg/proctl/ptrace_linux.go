package proctl

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

// ptraceSingleStep resumes the traced process for one instruction,
// delivering sig to it first if sig is nonzero. The x/sys wrapper takes
// no signal argument, so this goes through the raw syscall.
func ptraceSingleStep(pid, sig int) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_SINGLESTEP, uintptr(pid), 0, uintptr(sig), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}
