package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/metrics"
	"github.com/entrhq/navhistory/pkg/scenario"
	"github.com/entrhq/navhistory/pkg/sessionstore"
	"github.com/entrhq/navhistory/pkg/ui"
)

type replayOptions struct {
	save        []string
	showMetrics bool
}

func newReplayCmd(a *app) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Run a scenario and check its expectations",
		Long: `Replay runs every step of a scenario against simulated tabs, checks
each step's expectations and prints the resulting histories.

Tabs named with --save are written to the session store afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replay(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.save, "save", nil, "tabs to save to the session store")
	cmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "print history metrics after the run")
	return cmd
}

// runScenario loads and runs the scenario at path with the configured
// history capacity and site policy.
func (a *app) runScenario(ctx context.Context, path string, extra ...scenario.Option) (*scenario.Result, error) {
	s, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}

	var opts []scenario.Option
	if s.MaxEntryCount == 0 {
		opts = append(opts, scenario.WithHistoryOptions(a.cfg.HistoryOptions()...))
	}
	if a.cfg.SiteIsolation.IsolateAll || len(a.cfg.SiteIsolation.IsolatedPatterns) > 0 {
		policy, err := a.cfg.SitePolicy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, scenario.WithSitePolicy(policy))
	}
	opts = append(opts, extra...)

	return scenario.Run(ctx, s, opts...)
}

func (a *app) replay(ctx context.Context, out io.Writer, path string, opts *replayOptions) error {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	res, err := a.runScenario(ctx, path, scenario.WithTabObserver(rec.Observer))
	if err != nil {
		return err
	}

	printSteps(out, res)
	for _, id := range res.TabIDs() {
		tab, _ := res.Tab(id)
		fmt.Fprintln(out)
		fmt.Fprint(out, ui.RenderHistory("Tab "+id, tab.History))
	}

	if opts.showMetrics {
		fmt.Fprintln(out)
		if err := printMetrics(out, reg); err != nil {
			return err
		}
	}

	if len(opts.save) > 0 {
		if err := a.saveTabs(ctx, out, res, opts.save); err != nil {
			return err
		}
	}

	if !res.Passed() {
		return fmt.Errorf("scenario %q: %d unmet expectations", res.Scenario.Name, len(res.Failures()))
	}
	return nil
}

func printSteps(out io.Writer, res *scenario.Result) {
	fmt.Fprintf(out, "Scenario %s\n", res.Scenario.Name)
	for i, sr := range res.Steps {
		mark := "ok"
		if !sr.Passed() {
			mark = "FAIL"
		}
		line := fmt.Sprintf("%-4s %2d %s", mark, i+1, sr.Step.Describe())
		switch {
		case sr.Err != nil:
			line += "  error: " + sr.Err.Error()
		case sr.Details.Type != history.NavigationTypeUnknown:
			line += "  " + ui.RenderCommit(sr.Details)
		}
		fmt.Fprintln(out, line)
		for _, f := range sr.Failures {
			fmt.Fprintf(out, "          %s\n", f)
		}
	}
}

func (a *app) saveTabs(ctx context.Context, out io.Writer, res *scenario.Result, ids []string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, id := range ids {
		tab, ok := res.Tab(id)
		if !ok {
			return fmt.Errorf("scenario has no tab %q", id)
		}
		saved, err := sessionstore.Capture(id, tab.History)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, saved); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved tab %s (%d entries)\n", id, len(saved.Entries))
	}
	return nil
}

// printMetrics writes every sample in reg as "name{labels} value".
func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)

			value := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				value = g.GetValue()
			}
			fmt.Fprintf(out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}
