package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/livetree"
	"github.com/entrhq/navhistory/pkg/sessionstore"
	"github.com/entrhq/navhistory/pkg/ui"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *sessionstore.Store) error {
				return listTabs(cmd.Context(), cmd.OutOrStdout(), s)
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tab-id>",
		Short: "Render a saved tab's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *sessionstore.Store) error {
				return a.showTab(cmd.Context(), cmd.OutOrStdout(), s, args[0])
			})
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:   "dump <tab-id>",
		Short: "Print a saved tab as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *sessionstore.Store) error {
				return dumpTab(cmd.Context(), cmd.OutOrStdout(), s, args[0], color)
			})
		},
	}
	cmd.Flags().BoolVar(&color, "color", false, "highlight the JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tab-id>",
		Short: "Remove a saved tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *sessionstore.Store) error {
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted tab %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) withStore(fn func(*sessionstore.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func listTabs(ctx context.Context, out io.Writer, s *sessionstore.Store) error {
	tabs, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(tabs) == 0 {
		fmt.Fprintln(out, "no saved tabs")
		return nil
	}
	for _, t := range tabs {
		fmt.Fprintf(out, "%-16s %3d entries  at %-3d %s  %s\n",
			t.ID, t.EntryCount, t.Index, t.SavedAt.Local().Format("2006-01-02 15:04"), t.URL)
	}
	return nil
}

func (a *app) showTab(ctx context.Context, out io.Writer, s *sessionstore.Store, id string) error {
	saved, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	capacity := a.cfg.History.MaxEntryCount
	if len(saved.Entries) > capacity {
		capacity = len(saved.Entries)
	}
	c := history.NewController(livetree.New(), history.WithMaxEntryCount(capacity))
	if err := saved.RestoreInto(c); err != nil {
		return err
	}

	title := fmt.Sprintf("Tab %s (saved %s)", saved.ID, saved.SavedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprint(out, ui.RenderHistory(title, c))
	return nil
}

func dumpTab(ctx context.Context, out io.Writer, s *sessionstore.Store, id string, color bool) error {
	saved, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tab %s: %w", id, err)
	}

	doc := string(data)
	if color {
		doc = ui.HighlightJSON(doc)
	}
	fmt.Fprintln(out, doc)
	return nil
}
