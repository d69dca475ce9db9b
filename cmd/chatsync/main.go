// Command chatsync serves chat sessions that stay in sync with the page URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chatsync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chatsync",
		Short: "Chat sessions synchronized with the page URL",
		Long: `chatsync hosts chat sessions over WebSocket.

Each session keeps the selected chat in the ?chat= URL parameter and
loads the chat, its prompt, context files and model from storage when
a page opens with one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: chatsync.json or chatsync.yaml in the working directory or a parent)")

	cmd.AddCommand(
		serveCmd(&configPath),
		hydrateCmd(&configPath),
		seedCmd(&configPath),
		initCmd(),
		versionCmd(),
	)
	return cmd
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
