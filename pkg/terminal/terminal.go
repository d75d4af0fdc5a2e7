package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/go-delve/tinydbg/pkg/config"
	"github.com/go-delve/tinydbg/pkg/logflags"
	"github.com/go-delve/tinydbg/pkg/proctl"
	"github.com/go-delve/tinydbg/pkg/symbols"
)

const historyFile string = ".dbg_history"

// ExitRequestError is returned when the user
// exits the debugger.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

// Term represents one debug session: the prompt loop, the breakpoint
// table and at most one traced process.
type Term struct {
	target      string
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	syms        *symbols.Table
	breakpoints *proctl.BreakpointTable

	// procMu guards dbp: the command loop replaces the handle while
	// the sigint goroutine reads it.
	procMu sync.Mutex
	dbp    *proctl.DebuggedProcess

	dumb        bool
	stdout      io.Writer
	logger      *logrus.Entry
}

// New returns a Term driving a debug session for the given target
// executable.
func New(target string, syms *symbols.Table, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer
	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	return &Term{
		target:      target,
		conf:        conf,
		prompt:      "(tinydbg) ",
		line:        liner.NewLiner(),
		cmds:        cmds,
		syms:        syms,
		breakpoints: proctl.NewBreakpointTable(),
		dumb:        dumb,
		stdout:      w,
		logger:      logflags.TerminalLogger(),
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

func (t *Term) process() *proctl.DebuggedProcess {
	t.procMu.Lock()
	defer t.procMu.Unlock()
	return t.dbp
}

func (t *Term) setProcess(dbp *proctl.DebuggedProcess) {
	t.procMu.Lock()
	t.dbp = dbp
	t.procMu.Unlock()
}

// sigintGuard forwards an interrupt to the traced process as a stop
// signal; at the prompt it only prints a hint.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		if dbp := t.process(); dbp != nil && dbp.Alive() {
			fmt.Println("received SIGINT, stopping process (will not forward signal)")
			if err := dbp.RequestManualStop(); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		} else {
			fmt.Println("Type 'quit' to exit")
		}
	}
}

// Run begins the debug session in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Send the traced process a stop on SIGINT.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)

	t.line.SetCompleter(func(line string) (c []string) {
		if idx := strings.Index(line, " "); idx > 0 {
			// Complete function names for the break command.
			if cmd := line[:idx]; cmd == "break" || cmd == "b" {
				prefix := line[idx+1:]
				for _, fn := range t.syms.FunctionsWithPrefix(prefix) {
					c = append(c, line[:idx+1]+fn)
				}
			}
			return
		}
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	t.line.ReadHistory(f)
	f.Close()

	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		cmdstr, args := parseCommand(cmdstr)
		if err := t.cmds.Call(cmdstr, args, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// printStatus renders a status change of the traced process, resolving
// the stop address when the resolver can map it.
func (t *Term) printStatus(dbp *proctl.DebuggedProcess, status proctl.ProcessStatus) {
	fmt.Fprintf(t.stdout, "Process %d %s\n", dbp.Pid, status)
	if s, ok := status.(*proctl.Stopped); ok {
		if bp, found := t.breakpoints.Find(s.PC - 1); found {
			fmt.Fprintf(t.stdout, "> hit %s\n", bp)
		}
		loc, err := t.syms.PCToLine(s.PC)
		if err != nil {
			// Resolution misses are reported, not fatal.
			fmt.Fprintf(t.stdout, "> %v\n", err)
			return
		}
		fmt.Fprintf(t.stdout, "> %s() %s:%d\n", loc.FunctionName, loc.File, loc.Line)
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	// Terminate the traced process on every exit path so no traced
	// child is orphaned.
	if dbp := t.process(); dbp != nil {
		if err := dbp.KillAndReap(); err != nil {
			fmt.Fprintf(os.Stderr, "could not kill process: %v\n", err)
			return 1, nil
		}
		t.setProcess(nil)
	}
	return 0, nil
}

func parseCommand(cmdstr string) (string, string) {
	vals := strings.SplitN(cmdstr, " ", 2)
	if len(vals) == 1 {
		return vals[0], ""
	}
	return vals[0], strings.TrimSpace(vals[1])
}
