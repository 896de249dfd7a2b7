package sessions

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/logging"
	"github.com/hexverde/malsift/internal/session"
)

var (
	cfgPath  string
	cleanAll bool
	force    bool
)

// Cmd represents the `malsift sessions` command group.
var Cmd = &cobra.Command{
	Use:           "sessions",
	Short:         "Inspect and clean analysis session directories",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var listCmd = &cobra.Command{
	Use:           "list",
	Short:         "List session directories, newest first",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		infos, err := store.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stdout, "no sessions")
			return nil
		}
		for _, info := range infos {
			retained := ""
			if info.Retained {
				retained = "  [retained]"
			}
			fmt.Fprintf(os.Stdout, "%s  %s  %s%s\n",
				info.ID, info.Created, humanize.Bytes(info.Size), retained)
		}
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:           "clean [session-id...]",
	Short:         "Remove session directories",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !cleanAll {
			return fmt.Errorf("nothing to clean: pass session ids or --all")
		}
		store, log, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ids := args
		if cleanAll {
			infos, err := store.List()
			if err != nil {
				return err
			}
			ids = ids[:0]
			for _, info := range infos {
				ids = append(ids, info.ID)
			}
		}
		for _, id := range ids {
			store.Cleanup(store.Open(id), force)
		}
		return nil
	},
}

func openStore() (*session.Store, *zap.Logger, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
	}
	log, err := logging.New(logging.Options{})
	if err != nil {
		return nil, nil, err
	}
	return session.NewStore(cfg.TempDir, log), log, nil
}

func init() {
	Cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.cue)")
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "Clean every session directory")
	cleanCmd.Flags().BoolVar(&force, "force", false, "Remove directories even when the retention marker is present")
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(cleanCmd)
}
