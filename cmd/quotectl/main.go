package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dividendquotes/internal/app"
	"dividendquotes/internal/config"
	"dividendquotes/internal/dividend"
	"dividendquotes/internal/logging"
	"dividendquotes/internal/provider"
)

var (
	configPath string
	logLevel   string

	// newApp builds the wired components; tests replace it.
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.New(ctx, cfg)
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quotectl",
		Short:         "Query quotes, history and dividends through the caching market data client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")

	root.AddCommand(
		summaryCmd(),
		historyCmd(),
		searchCmd(),
		dividendsCmd(),
		clearCacheCmd(),
	)
	return root
}

// withApp loads the config, builds the App and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Debug("config loaded",
		zap.String("path", configPath),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("log_level", cfg.Logging.Level),
	)
	return fn(ctx, a)
}

func summaryCmd() *cobra.Command {
	var modules []string

	cmd := &cobra.Command{
		Use:   "summary SYMBOL",
		Short: "Print the quote summary modules of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				qs, err := a.Client.QuoteSummary(ctx, args[0], modules...)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), qs)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&modules, "modules", "m", nil, "modules to fetch (default price,summaryDetail)")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		start    string
		end      string
		interval string
	)

	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Print historical bars of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endDate := time.Now().UTC()
			if end != "" {
				t, err := time.Parse("2006-01-02", end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				endDate = t
			}
			startDate := endDate.AddDate(-1, 0, 0)
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				startDate = t
			}
			iv, err := provider.ParseInterval(interval)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				bars, err := a.Client.HistoricalData(ctx, args[0], startDate, endDate, iv)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tADJ CLOSE\tVOLUME")
				for _, b := range bars {
					fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
						b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (default one year before end)")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&interval, "interval", "i", "1d", "bar interval: 1d, 1wk, 1mo")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search instruments by name or symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				results, err := a.Client.Search(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SYMBOL\tNAME\tEXCHANGE\tTYPE")
				for _, r := range results {
					name := r.LongName
					if name == "" {
						name = r.ShortName
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Symbol, truncate(name, 40), r.Exchange, r.QuoteType)
				}
				return w.Flush()
			})
		},
	}
}

func dividendsCmd() *cobra.Command {
	var (
		output      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "dividends SYMBOL...",
		Short: "Print dividend snapshots ordered by yield",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				snaps := make([]dividend.Snapshot, len(args))
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(max(concurrency, 1))
				for i, sym := range args {
					g.Go(func() error {
						qs, err := a.Client.QuoteSummary(gctx, sym, dividend.Modules...)
						if err != nil {
							return fmt.Errorf("%s: %w", sym, err)
						}
						s, err := dividend.FromSummary(sym, qs)
						if err != nil {
							return fmt.Errorf("%s: %w", sym, err)
						}
						snaps[i] = s
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				dividend.SortByYield(snaps)

				if output == "json" {
					return printJSON(cmd.OutOrStdout(), snaps)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SYMBOL\tPRICE\tRATE\tYIELD\tEX-DIV\tPAYMENT")
				for _, s := range snaps {
					fmt.Fprintf(w, "%s\t%.2f %s\t%.2f\t%.2f%%\t%s\t%s\n",
						s.Symbol, s.Price, s.Currency, s.Rate, s.Yield*100, date(s.ExDividendDate), date(s.PaymentDate))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel lookups")
	return cmd
}

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop every cached response in the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Client.ClearCache(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "cache cleared (%s)\n", a.Config.Cache.Backend)
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func date(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
