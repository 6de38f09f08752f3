package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive vdabridgectl shell",
		Long:  "Launches a REPL with completion and history that accepts vdabridgectl subcommands. Type 'exit' or press Ctrl+D to quit.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := console.New("vdabridgectl")
			app.NewlineAfter = true

			app.SetPrintLogo(func(_ *console.Console) {
				fmt.Println("vdabridge interactive shell. Type 'help' for available commands, 'exit' to quit.")
			})

			menu := app.ActiveMenu()
			menu.Prompt().Primary = shellPrompt
			menu.AddInterrupt(io.EOF, exitShell)
			menu.SetCommands(shellTree())

			return app.Start()
		},
	}
}

// shellPrompt renders the primary prompt with the daemon address in view.
func shellPrompt() string {
	return "vdabridgectl(" + serverAddr + ")> "
}

// shellTree rebuilds the command tree for every prompt line so flag state
// never leaks from one line into the next. The outer invocation's
// persistent flags become the shell defaults.
func shellTree() console.Commands {
	outerAddr, outerFormat := serverAddr, outputFormat

	return func() *cobra.Command {
		root := newRootCmd()

		// newRootCmd reset the flag targets to their built-in defaults;
		// restore the values the shell was started with.
		serverAddr, outputFormat = outerAddr, outerFormat

		// The shell itself must not be reachable from inside the shell.
		for _, sub := range root.Commands() {
			if sub.Name() == "shell" {
				root.RemoveCommand(sub)

				break
			}
		}

		root.AddCommand(exitCmd())

		return root
	}
}

// exitCmd terminates the shell process.
func exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Leave the interactive shell",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			os.Exit(0)
		},
	}
}

// exitShell handles Ctrl+D.
func exitShell(_ *console.Console) {
	os.Exit(0)
}
