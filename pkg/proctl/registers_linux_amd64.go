package proctl

import sys "golang.org/x/sys/unix"

type Registers interface {
	PC() uint64
	BP() uint64
	SetPC(pid int, pc uint64) error
}

type Regs struct {
	regs *sys.PtraceRegs
}

func (r *Regs) PC() uint64 {
	return r.regs.PC()
}

func (r *Regs) BP() uint64 {
	return r.regs.Rbp
}

func (r *Regs) SetPC(pid int, pc uint64) error {
	r.regs.SetPC(pc)
	return sys.PtraceSetRegs(pid, r.regs)
}

func registers(pid int) (Registers, error) {
	var regs sys.PtraceRegs
	err := sys.PtraceGetRegs(pid, &regs)
	if err != nil {
		return nil, err
	}
	return &Regs{&regs}, nil
}
