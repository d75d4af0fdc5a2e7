package proctl

import (
	"encoding/binary"

	sys "golang.org/x/sys/unix"
)

// 0xCC is INT 3, the software breakpoint trap instruction.
const breakpointInstruction = 0xcc

const wordSize = 8

// readWord reads one machine word from the traced process. Only valid
// while the process is stopped.
func (dbp *DebuggedProcess) readWord(addr uint64) (uint64, error) {
	data := make([]byte, wordSize)
	if _, err := sys.PtracePeekData(dbp.Pid, uintptr(addr), data); err != nil {
		if err == sys.EIO || err == sys.EFAULT {
			return 0, InvalidAddressError{address: addr}
		}
		return 0, ControlError{Op: "peekdata", Err: err}
	}
	return binary.LittleEndian.Uint64(data), nil
}

// writeWord writes one machine word into the traced process. Only valid
// while the process is stopped.
func (dbp *DebuggedProcess) writeWord(addr uint64, word uint64) error {
	data := make([]byte, wordSize)
	binary.LittleEndian.PutUint64(data, word)
	if _, err := sys.PtracePokeData(dbp.Pid, uintptr(addr), data); err != nil {
		if err == sys.EIO || err == sys.EFAULT {
			return InvalidAddressError{address: addr}
		}
		return ControlError{Op: "pokedata", Err: err}
	}
	return nil
}

// installByte writes the trap instruction at addr and returns the byte
// it replaced. Ptrace memory access is word sized, so the patch is a
// word-aligned read-modify-write masking in the single trap byte; the
// traced process is stopped for the duration, which is what keeps the
// sequence from racing with it.
func (dbp *DebuggedProcess) installByte(addr uint64) (byte, error) {
	aligned := addr &^ uint64(wordSize-1)
	word, err := dbp.readWord(aligned)
	if err != nil {
		return 0, err
	}
	shift := (addr - aligned) * 8
	orig := byte(word >> shift)
	patched := word&^(uint64(0xff)<<shift) | uint64(breakpointInstruction)<<shift
	if err := dbp.writeWord(aligned, patched); err != nil {
		return 0, err
	}
	return orig, nil
}

// restoreByte reverses installByte, writing orig back at addr.
func (dbp *DebuggedProcess) restoreByte(addr uint64, orig byte) error {
	aligned := addr &^ uint64(wordSize-1)
	word, err := dbp.readWord(aligned)
	if err != nil {
		return err
	}
	shift := (addr - aligned) * 8
	restored := word&^(uint64(0xff)<<shift) | uint64(orig)<<shift
	return dbp.writeWord(aligned, restored)
}
