// Package terminal implements the interactive debugger session:
// reading user input and dispatching commands against the traced
// process and the breakpoint table.
package terminal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/go-delve/tinydbg/pkg/locspec"
	"github.com/go-delve/tinydbg/pkg/proctl"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the terminal process.
type Commands struct {
	cmds    []command
	lastCmd cmdfunc
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: "Prints the help message."},
		{aliases: []string{"break", "b"}, cmdFn: breakpoint, helpMsg: "break <*address|line|function>. Sets a breakpoint."},
		{aliases: []string{"breakpoints", "bp"}, cmdFn: breakpoints, helpMsg: "Print out info for active breakpoints."},
		{aliases: []string{"run", "r"}, cmdFn: run, helpMsg: "run [args...]. Starts or restarts the target process."},
		{aliases: []string{"continue", "c"}, cmdFn: cont, helpMsg: "Run until breakpoint or program termination."},
		{aliases: []string{"backtrace", "bt"}, cmdFn: backtrace, helpMsg: "backtrace [depth]. Prints stack."},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the debugger."},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will replay the last command.
func (c *Commands) Find(cmdstr string) cmdfunc {
	// If <enter> use last command, if there was one.
	if cmdstr == "" {
		if c.lastCmd != nil {
			return c.lastCmd
		}
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			c.lastCmd = v.cmdFn
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call locates and executes the command named by cmdstr.
func (c *Commands) Call(cmdstr, args string, t *Term) error {
	return c.Find(cmdstr)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

func noCmdAvailable(t *Term, args string) error {
	return fmt.Errorf("command not available")
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	fmt.Println("The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(os.Stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), cmd.helpMsg)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], cmd.helpMsg)
		}
	}
	return w.Flush()
}

func breakpoint(t *Term, args string) error {
	if args == "" {
		return fmt.Errorf("argument required, expected address (*0x...), line number or function name")
	}
	addr, err := locspec.Parse(args, t.syms)
	if err != nil {
		return err
	}

	var (
		fn   string
		file string
		line int
	)
	if loc, err := t.syms.PCToLine(addr); err == nil {
		fn, file, line = loc.FunctionName, loc.File, loc.Line
	}

	bp, err := t.breakpoints.Set(addr, fn, file, line)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint %d set at %#x for %s %s:%d\n", bp.ID, bp.Addr, bp.FunctionName, bp.File, bp.Line)
	return nil
}

func breakpoints(t *Term, args string) error {
	for _, bp := range t.breakpoints.All() {
		fmt.Fprintf(t.stdout, "%s %s\n", bp, bp.FunctionName)
	}
	return nil
}

func run(t *Term, args string) error {
	targetArgs, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	// Starting a new run while a process exists must terminate and
	// reap the old one first.
	if old := t.process(); old != nil {
		if err := old.KillAndReap(); err != nil {
			return err
		}
		t.setProcess(nil)
	}

	dbp, err := proctl.Launch(t.target, targetArgs, t.breakpoints)
	if err != nil {
		if dbp == nil {
			return err
		}
		// The process is live but breakpoints could not all be
		// installed; report and keep debugging.
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	t.setProcess(dbp)
	t.logger.Debugf("running %s pid %d", t.target, dbp.Pid)
	return cont(t, "")
}

func parseRunArgs(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", args)
	}
	return v[0], nil
}

func cont(t *Term, args string) error {
	dbp := t.process()
	if dbp == nil {
		return fmt.Errorf("no process, run the target first")
	}
	status, err := dbp.Continue(t.breakpoints)
	if err != nil {
		return err
	}
	t.printStatus(dbp, status)
	if proctl.Terminal(status) {
		t.setProcess(nil)
	}
	return nil
}

func backtrace(t *Term, args string) error {
	dbp := t.process()
	if dbp == nil {
		return fmt.Errorf("no process, run the target first")
	}

	depth := proctl.DefaultStackDepth
	if t.conf.MaxStackDepth != nil {
		depth = *t.conf.MaxStackDepth
	}
	if args != "" {
		d, err := strconv.Atoi(args)
		if err != nil {
			return fmt.Errorf("invalid depth %q", args)
		}
		depth = d
	}

	frames, err := dbp.Stacktrace(depth, t.syms)
	for i := range frames {
		fr := &frames[i]
		fmt.Fprintf(t.stdout, "%d  %#016x in %s\n    at %s:%d\n", i, fr.PC, fr.FunctionName, fr.File, fr.Line)
	}
	// Truncation or a resolution miss is reported after showing the
	// frames that were collected.
	return err
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}
