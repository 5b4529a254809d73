package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the rituo application
var rootCmd = &cobra.Command{
	Use:   "rituo",
	Short: "Chat server with Google Workspace tool calling",
	Long: `rituo is an AI chat server. Users sign in with Google, talk to a hosted
model, and the model can act on their Calendar, Gmail, and Tasks through a
remote tool endpoint using the user's own Google credential.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rituo version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newVersionCmd())
}
