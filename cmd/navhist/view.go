package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/navhistory/pkg/tabsim"
	"github.com/entrhq/navhistory/pkg/ui"
)

func newViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view <scenario.yaml>",
		Short: "Replay a scenario, then browse its tabs interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.runScenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var tabs []*tabsim.Tab
			for _, id := range res.TabIDs() {
				tab, _ := res.Tab(id)
				tabs = append(tabs, tab)
			}
			return ui.RunViewer(tabs...)
		},
	}
}
