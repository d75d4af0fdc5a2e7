package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/go-delve/tinydbg/pkg/config"
	"github.com/go-delve/tinydbg/pkg/logflags"
	"github.com/go-delve/tinydbg/pkg/symbols"
	"github.com/go-delve/tinydbg/pkg/terminal"
)

const version string = "0.1.0"

var (
	Log       bool
	LogOutput string
)

func init() {
	// Ptrace requires that all trace calls come from the thread that
	// started the trace.
	runtime.LockOSThread()
}

func main() {
	// Main tinydbg root command.
	rootCommand := &cobra.Command{
		Use:   "tinydbg",
		Short: "tinydbg is a minimal native debugger.",
	}
	rootCommand.PersistentFlags().BoolVarP(&Log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&LogOutput, "log-output", "", "", "Comma separated list of layers to log (proctl,terminal,symbols).")

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tinydbg version: " + version)
		},
	}
	rootCommand.AddCommand(versionCommand)

	// 'exec' subcommand.
	execCommand := &cobra.Command{
		Use:   "exec <binary>",
		Short: "Begin debugging an already compiled binary.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(args[0]))
		},
	}
	rootCommand.AddCommand(execCommand)

	// 'debug' subcommand.
	debugCommand := &cobra.Command{
		Use:   "debug",
		Short: "Compile and begin debugging the package in the current directory.",
		Long: `Compiles your program with optimizations disabled,
then launches it under trace control and opens the debug session.`,
		Run: func(cmd *cobra.Command, args []string) {
			const debugname = "debug"
			goBuild := exec.Command("go", "build", "-o", debugname, "-gcflags", "all=-N -l")
			goBuild.Stderr = os.Stderr
			err := goBuild.Run()
			if err != nil {
				os.Exit(1)
			}
			fp, err := filepath.Abs("./" + debugname)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			status := execute(fp)
			os.Remove(fp)
			os.Exit(status)
		},
	}
	rootCommand.AddCommand(debugCommand)

	rootCommand.Execute()
}

func execute(target string) int {
	if err := logflags.Setup(Log, LogOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	syms, err := symbols.New(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load debug symbols from %s: %v\n", target, err)
		return 1
	}

	conf := config.LoadConfig()
	t := terminal.New(target, syms, conf)
	status, err := t.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
