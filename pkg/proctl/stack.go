package proctl

import (
	"fmt"

	"github.com/go-delve/tinydbg/pkg/symbols"
)

// DefaultStackDepth is the frame walk cap used when the caller does not
// configure one.
const DefaultStackDepth = 64

// TruncatedStackError is returned when the frame walk hits the depth
// cap before reaching the entry function, usually a sign of a corrupted
// frame pointer chain.
type TruncatedStackError struct {
	Frames int
}

func (tse TruncatedStackError) Error() string {
	return fmt.Sprintf("stack walk truncated after %d frames", tse.Frames)
}

// Stackframe is one entry of a backtrace.
type Stackframe struct {
	PC           uint64
	FP           uint64
	FunctionName string
	File         string
	Line         int
}

// Stacktrace walks the frame pointer chain of the stopped process,
// resolving each frame with syms, until the entry function or the depth
// cap is reached. The caller's return address sits one word above the
// saved frame base and the caller's frame base at the frame base
// itself, which holds only for targets compiled preserving frame
// pointers. A resolution miss ends the walk and is returned along with
// the frames collected so far.
func (dbp *DebuggedProcess) Stacktrace(depth int, syms *symbols.Table) ([]Stackframe, error) {
	if dbp.exited {
		return nil, ProcessExitedError{Pid: dbp.Pid}
	}
	if depth <= 0 {
		depth = DefaultStackDepth
	}

	regs, err := dbp.Registers()
	if err != nil {
		return nil, err
	}

	var (
		frames = make([]Stackframe, 0, 8)
		pc     = regs.PC()
		fp     = regs.BP()
	)
	for len(frames) < depth {
		loc, err := syms.PCToLine(pc)
		if err != nil {
			return frames, err
		}
		frames = append(frames, Stackframe{
			PC:           pc,
			FP:           fp,
			FunctionName: loc.FunctionName,
			File:         loc.File,
			Line:         loc.Line,
		})
		if loc.FunctionName == symbols.EntryFunction {
			return frames, nil
		}

		retaddr, err := dbp.readWord(fp + wordSize)
		if err != nil {
			return frames, err
		}
		newfp, err := dbp.readWord(fp)
		if err != nil {
			return frames, err
		}
		pc, fp = retaddr, newfp
	}
	return frames, TruncatedStackError{Frames: len(frames)}
}
