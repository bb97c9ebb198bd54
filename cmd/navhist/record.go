package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/navhistory/pkg/browser"
	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/metrics"
	"github.com/entrhq/navhistory/pkg/sessionstore"
	"github.com/entrhq/navhistory/pkg/ui"
)

type recordOptions struct {
	duration    time.Duration
	save        string
	metricsAddr string
	headful     bool
}

func newRecordCmd(a *app) *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record the history of a real Chromium tab",
		Long: `Record opens url in Chromium and records every frame navigation into a
history until the duration elapses or the command is interrupted. Browse
around in the window (with --headful) to build up history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "how long to record")
	cmd.Flags().StringVar(&opts.save, "save", "", "save the recorded tab under this ID")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while recording")
	cmd.Flags().BoolVar(&opts.headful, "headful", false, "show the browser window")
	return cmd
}

func (a *app) record(ctx context.Context, out io.Writer, url string, opts *recordOptions) error {
	policy, err := a.cfg.SitePolicy()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(out, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	manager := browser.NewManager(browser.WithSessionLimit(1))
	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	var session *browser.Session
	// The observer runs inside a recorder commit, which already holds the
	// history.
	count := func() int { return session.Recorder.History().EntryCount() }
	historyOpts := append(a.cfg.HistoryOptions(), history.WithObserver(rec.Observer("record", count)))

	session, err = manager.Open("record", browser.SessionOptions{
		Headless: a.cfg.Browser.Headless && !opts.headful,
		Timeout:  a.cfg.Browser.Timeout,
		Recorder: []browser.Option{
			browser.WithHistoryOptions(historyOpts...),
			browser.WithSitePolicy(policy),
		},
	})
	if err != nil {
		return err
	}

	if err := session.Navigate(url, browser.NavigateOptions{WaitUntil: "load"}); err != nil {
		return err
	}
	fmt.Fprintf(out, "recording %s for %s\n", url, opts.duration)

	select {
	case <-ctx.Done():
	case <-time.After(opts.duration):
	}

	// Stop the browser before reading the history so no late frame event
	// lands while it is rendered or captured.
	recorder, err := manager.Close("record")
	if recorder == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(out, "closing browser: %v\n", err)
	}
	commits := recorder.Commits()

	var saved *sessionstore.SavedTab
	err = recorder.Inspect(func(h *history.Controller) error {
		fmt.Fprint(out, ui.RenderHistory(fmt.Sprintf("Recorded (%d commits)", commits), h))
		if opts.save == "" {
			return nil
		}
		var err error
		saved, err = sessionstore.Capture(opts.save, h)
		return err
	})
	if err != nil || saved == nil {
		return err
	}

	// The command context may already be cancelled by the interrupt that
	// ended the recording.
	return a.withStore(func(s *sessionstore.Store) error {
		if err := s.Save(context.WithoutCancel(ctx), saved); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved tab %s (%d entries)\n", saved.ID, len(saved.Entries))
		return nil
	})
}
