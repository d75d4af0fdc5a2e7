// proctl is a low-level package that provides methods to launch and
// manipulate the process we are debugging, and methods to read and
// write from its virtual memory.
//
// proctl implements the core features of this debugger: spawning the
// target under trace control, installing and removing software
// breakpoints, resuming and waiting on the target, and walking its
// call stack.
//
// What follows is a breakdown of the division of responsibility by file:
//
// * proctl.go - Process lifecycle: launch, continue, wait, kill.
// * breakpoints(_*).go - Breakpoint table and trap byte patching.
// * registers_*.go - Register access.
// * ptrace_*.go - Raw ptrace calls the x/sys wrappers do not cover.
// * stack.go - Frame pointer stack unwinding.
package proctl
