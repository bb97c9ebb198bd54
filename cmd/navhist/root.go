package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/navhistory/pkg/config"
	"github.com/entrhq/navhistory/pkg/logging"
	"github.com/entrhq/navhistory/pkg/sessionstore"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "navhist",
		Short:         "Replay, record and inspect browser tab histories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default ./"+config.DefaultFileName+")")

	root.AddCommand(
		newReplayCmd(a),
		newViewCmd(a),
		newRecordCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDumpCmd(a),
		newDeleteCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := config.Initialize(a.configPath); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	a.cfg = config.Global()

	level, err := a.cfg.LogLevel()
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	return nil
}

// openStore opens the configured session store. The caller closes it.
func (a *app) openStore() (*sessionstore.Store, error) {
	if a.cfg.Store.InMemory {
		return sessionstore.Open(sessionstore.Options{InMemory: true})
	}
	path, err := a.cfg.StorePath()
	if err != nil {
		return nil, err
	}
	return sessionstore.Open(sessionstore.Options{Path: path, SyncWrites: true})
}
