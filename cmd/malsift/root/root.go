package root

import (
	"github.com/spf13/cobra"

	"github.com/hexverde/malsift/cmd/malsift/analyze"
	"github.com/hexverde/malsift/cmd/malsift/sessions"
	"github.com/hexverde/malsift/cmd/malsift/version"
)

// NewRootCmd creates the root command for malsift.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "malsift",
		Short: "Staged forensic analysis of banking-trojan delivery chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Subcommands
	cmd.AddCommand(version.VersionCmd)
	cmd.AddCommand(analyze.Cmd)
	cmd.AddCommand(sessions.Cmd)

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
