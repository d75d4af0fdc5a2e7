package terminal

import (
	"fmt"
	"testing"
)

func TestCommandDefault(t *testing.T) {
	var (
		cmds = Commands{}
		cmd  = cmds.Find("non-existant-command")
	)

	err := cmd(nil, "")
	if err == nil {
		t.Fatal("cmd() did not default")
	}

	if err.Error() != "command not available" {
		t.Fatal("wrong command output")
	}
}

func TestCommandReplay(t *testing.T) {
	cmds := DebugCommands()
	cmds.Register("foo", func(t *Term, args string) error { return fmt.Errorf("registered command") }, "foo command")
	cmd := cmds.Find("foo")

	err := cmd(nil, "")
	if err.Error() != "registered command" {
		t.Fatal("wrong command output")
	}

	cmd = cmds.Find("")
	err = cmd(nil, "")
	if err.Error() != "registered command" {
		t.Fatal("wrong command output")
	}
}

func TestCommandReplayWithoutPreviousCommand(t *testing.T) {
	var (
		cmds = DebugCommands()
		cmd  = cmds.Find("")
		err  = cmd(nil, "")
	)

	if err != nil {
		t.Error("Null command not returned", err)
	}
}

func TestCommandMergeAliases(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"exit": {"bye"}})

	cmd := cmds.Find("bye")
	if _, ok := cmd(nil, "").(ExitRequestError); !ok {
		t.Fatal("merged alias was not found")
	}
}

func TestProcessHandleConcurrentAccess(t *testing.T) {
	// The sigint goroutine reads the process handle while the command
	// loop replaces it; both must go through the guarded accessors.
	term := &Term{}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			term.process()
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		term.setProcess(nil)
	}
	<-done
}

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct {
		input string
		cmd   string
		args  string
	}{
		{"break main.main", "break", "main.main"},
		{"run", "run", ""},
		{"run arg1 arg2", "run", "arg1 arg2"},
		{"", "", ""},
	} {
		cmd, args := parseCommand(tc.input)
		if cmd != tc.cmd || args != tc.args {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tc.input, cmd, args, tc.cmd, tc.args)
		}
	}
}

func TestParseRunArgs(t *testing.T) {
	args, err := parseRunArgs(`one "two three" four`)
	if err != nil {
		t.Fatal("parseRunArgs():", err)
	}
	want := []string{"one", "two three", "four"}
	if len(args) != len(want) {
		t.Fatalf("parseRunArgs() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("parseRunArgs() = %v, want %v", args, want)
		}
	}
}
