package proctl

import (
	"fmt"
	"sort"
)

// Represents a single breakpoint. The address is the unique key. The
// original instruction byte the trap replaces is not stored here: it
// belongs to the process instance the breakpoint is installed in, so
// that a breakpoint set before a run is correctly treated as pending
// again in every new process.
type BreakPoint struct {
	ID           int
	Addr         uint64
	FunctionName string
	File         string
	Line         int
}

func (bp *BreakPoint) String() string {
	return fmt.Sprintf("breakpoint %d at %#x %s:%d", bp.ID, bp.Addr, bp.File, bp.Line)
}

// Returned when trying to set a breakpoint at an address that already
// has a breakpoint set for it.
type BreakPointExistsError struct {
	file string
	line int
	addr uint64
}

func (bpe BreakPointExistsError) Error() string {
	return fmt.Sprintf("breakpoint exists at %s:%d at %x", bpe.file, bpe.line, bpe.addr)
}

// InvalidAddressError represents the result of attempting to patch an
// invalid or unmapped address.
type InvalidAddressError struct {
	address uint64
}

func (iae InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %#v", iae.address)
}

// BreakpointTable is the set of breakpoints requested for a debug
// session. It is owned by the session controller and outlives any
// individual traced process: entries persist across re-runs and are
// installed into each new process instance at launch or resume time.
type BreakpointTable struct {
	breakpoints map[uint64]*BreakPoint
	counter     int
}

// NewBreakpointTable returns an empty breakpoint table.
func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{breakpoints: make(map[uint64]*BreakPoint)}
}

// Set adds a breakpoint for addr, recording the symbolic location for
// rendering. The breakpoint becomes effective in a given process
// instance only once it is installed there.
func (bpt *BreakpointTable) Set(addr uint64, fn, file string, line int) (*BreakPoint, error) {
	if bp, ok := bpt.breakpoints[addr]; ok {
		return nil, BreakPointExistsError{bp.File, bp.Line, addr}
	}
	bpt.counter++
	bp := &BreakPoint{
		ID:           bpt.counter,
		Addr:         addr,
		FunctionName: fn,
		File:         file,
		Line:         line,
	}
	bpt.breakpoints[addr] = bp
	return bp, nil
}

// Find returns the breakpoint set for addr, if any.
func (bpt *BreakpointTable) Find(addr uint64) (*BreakPoint, bool) {
	bp, ok := bpt.breakpoints[addr]
	return bp, ok
}

// All returns every breakpoint in the table, ordered by ID.
func (bpt *BreakpointTable) All() []*BreakPoint {
	bps := make([]*BreakPoint, 0, len(bpt.breakpoints))
	for _, bp := range bpt.breakpoints {
		bps = append(bps, bp)
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].ID < bps[j].ID })
	return bps
}
