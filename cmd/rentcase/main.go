package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"rentcase/internal/app"
	"rentcase/internal/config"
	"rentcase/internal/httpapi"
	"rentcase/internal/logger"
	"rentcase/internal/render"
	"rentcase/internal/tui"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "rentcase",
		Short:         "Rental dispute decision engine backed by retrieved precedent cases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ./config.yaml or ~/.config/rentcase/config.yaml)")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the case entries and replace the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			res, err := app.Ingest(cmd.Context(), cfg, log, func(done, total int) {
				fmt.Fprintf(os.Stderr, "embedded %d/%d\n", done, total)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Printf("Wrote %d cases (dimension %d) to %s in %s\n",
				res.Records, res.Dimension, res.Store, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	var (
		noStream bool
		asJSON   bool
	)
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Generate a decision report for one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			return ask(cmd.Context(), cfg, log, strings.Join(args, " "), !noStream, asJSON)
		},
	}
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the complete report")
	askCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	var topK int
	var threshold float64
	searchCmd := &cobra.Command{
		Use:   "search [question]",
		Short: "List the precedent cases retrieved for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("top-k") {
				cfg.Retrieval.TopK = topK
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Retrieval.Threshold = threshold
			}
			return search(cmd.Context(), cfg, log, strings.Join(args, " "))
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 5, "Maximum number of cases")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0.3, "Minimum cosine similarity")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(configPath)
			if err != nil {
				return err
			}
			// Logs would corrupt the alternate screen.
			return runTUI(cmd.Context(), cfg, logger.Nop())
		},
	}

	rootCmd.AddCommand(ingestCmd, serveCmd, askCmd, searchCmd, tuiCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setup(configPath string) (*config.AppConfig, *logger.Logger, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, err
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, log, nil
}

func serve(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) error {
	a, err := app.New(ctx, cfg, log, app.Options{Generation: true})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	// Warm the cache so a bad snapshot shows up in the startup log.
	if snap, err := a.Cache.Get(ctx); err != nil {
		log.Warn().Err(err).Str("store", a.Cache.Backend().String()).Msg("case store unavailable; answers will run without precedent")
	} else {
		a.Metrics.SetSnapshotRecords(snap.Len())
	}

	opts := []httpapi.HandlerOption{httpapi.WithMetrics(a.Metrics), httpapi.WithLogger(log.Component("http"))}
	if env := cfg.Server.AdminTokenEnv; env != "" {
		if token := os.Getenv(env); token != "" {
			opts = append(opts, httpapi.WithAdminToken(token))
		}
	}
	h := httpapi.NewHandler(a.Service, a.Cache, opts...)
	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.NewRouter(h),
		time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second, log)
	log.LogServerStart(cfg.Server.Addr, a.Cache.Backend().String())
	return srv.Run(ctx)
}

func ask(ctx context.Context, cfg *config.AppConfig, log *logger.Logger, question string, stream, asJSON bool) error {
	a, err := app.New(ctx, cfg, log, app.Options{Generation: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	answer, err := a.Service.AnswerStream(ctx, question)
	if err != nil {
		return err
	}
	defer answer.Close()
	if answer.Degraded != nil {
		fmt.Fprintf(os.Stderr, "warning: answering without precedent: %v\n", answer.Degraded)
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		r, err := answer.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if stream && asJSON {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}
	final := answer.Final()
	switch {
	case asJSON && stream:
		return nil
	case asJSON:
		return enc.Encode(final)
	}
	out, err := render.Terminal(final, answer.Cases, 100)
	if err != nil {
		out = render.Markdown(final, answer.Cases)
	}
	fmt.Print(out)
	return nil
}

func search(ctx context.Context, cfg *config.AppConfig, log *logger.Logger, question string) error {
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Retrieval.Search(ctx, question, a.RetrievalOptions())
	if err != nil {
		return err
	}
	if res.Degraded != nil {
		return fmt.Errorf("retrieval degraded: %w", res.Degraded)
	}
	if len(res.Cases) == 0 {
		fmt.Println("No closely matching precedent found.")
		return nil
	}
	for i, c := range res.Cases {
		fmt.Printf("%d. %.3f  %s  %s\n", i+1, c.Score, c.Record.ID, c.Record.Metadata.Title)
	}
	return nil
}

func runTUI(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) error {
	a, err := app.New(ctx, cfg, log, app.Options{Generation: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	info := "store: " + a.Cache.Backend().String()
	if snap, err := a.Cache.Get(ctx); err == nil {
		info = fmt.Sprintf("%s (%d cases)", info, snap.Len())
	} else {
		info += " (unavailable)"
	}
	p := tea.NewProgram(tui.New(ctx, tui.FromService(a.Service), info), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
