package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabpipe/batch"
	"github.com/hazyhaar/tabpipe/fallback"
	"github.com/hazyhaar/tabpipe/runlog"
	"github.com/hazyhaar/tabpipe/strategy"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "extract":
		cmdExtract(os.Args[2:])
	case "strategies":
		cmdStrategies()
	case "history":
		cmdHistory(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `tabpipe — batch PDF table and text extraction

usage:
  tabpipe run        -in <dir> -out <dir> [flags]
  tabpipe extract    <file.pdf>
  tabpipe strategies
  tabpipe history    [-runlog <db>] [-n <count>]
  tabpipe mcp        [flags]

run         Extracts every PDF in a directory through the fallback chain.
extract     Extracts one PDF and prints the result as JSON.
strategies  Lists the built-in strategies in default fallback order.
history     Shows recent batch runs from the run-history database.
mcp         Serves the extraction tools over MCP stdio.
`)
}

func setupLogging(verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadRunConfig builds the effective config: file first, then flags on top.
func loadRunConfig(configPath string, apply func(*batch.Config)) (batch.Config, error) {
	cfg := batch.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = batch.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
	}
	apply(&cfg)
	return cfg, cfg.Validate()
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	in := fs.String("in", "", "input directory containing PDFs (required)")
	out := fs.String("out", "", "output root directory (required)")
	configPath := fs.String("config", "", "YAML config file")
	workers := fs.Int("workers", 0, "concurrent workers (overrides config)")
	chain := fs.String("strategies", "", "comma-separated strategy order (overrides config)")
	limit := fs.Int("limit", 0, "process only the first N documents")
	timeout := fs.Duration("attempt-timeout", 0, "per-strategy attempt timeout (overrides config)")
	runLog := fs.String("runlog", "", "run-history SQLite database path")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args)

	logger := setupLogging(*verbose)
	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "run requires -in and -out")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadRunConfig(*configPath, func(c *batch.Config) {
		if *workers > 0 {
			c.Workers = *workers
		}
		if *chain != "" {
			c.Strategies = strings.Split(*chain, ",")
		}
		if *limit > 0 {
			c.Limit = *limit
		}
		if *timeout > 0 {
			c.AttemptTimeout = batch.Duration(*timeout)
		}
		if *runLog != "" {
			c.RunLogPath = *runLog
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := batch.Run(ctx, *in, *out, cfg,
		batch.WithLogger(logger),
		batch.OnResult(func(p batch.Progress) {
			fmt.Fprintf(os.Stderr, "  [%d/%d] %-40s %s  tables=%d\n",
				p.Done, p.Total, p.Summary.Filename, p.Summary.Status, p.Summary.TotalTables)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "done: %d files, %d successful, %d failed, %d tables in %.1fs\n",
		sum.TotalFiles, sum.SuccessfulFiles, sum.FailedFiles,
		sum.TotalTablesFound, sum.ElapsedSeconds)
	if sum.FailedFiles > 0 {
		os.Exit(2)
	}
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	chain := fs.String("strategies", "", "comma-separated strategy order")
	timeout := fs.Duration("attempt-timeout", 2*time.Minute, "per-strategy attempt timeout")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args)

	logger := setupLogging(*verbose)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "extract requires a PDF path")
		os.Exit(1)
	}

	order := strategy.DefaultOrder()
	if *chain != "" {
		order = strings.Split(*chain, ",")
	}
	backends, err := strategy.Resolve(order)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	ex := fallback.New(backends, fallback.Options{AttemptTimeout: *timeout, Logger: logger})
	res := ex.Extract(ctx, fs.Arg(0))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	if res.Status == fallback.StatusError {
		os.Exit(2)
	}
}

func cmdStrategies() {
	backends, _ := strategy.Resolve(strategy.DefaultOrder())
	fmt.Println("strategies in default fallback order:")
	for i, s := range backends {
		fmt.Printf("  %d. %s\n", i+1, s.Name())
	}
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	runLog := fs.String("runlog", "tabpipe_history.db", "run-history SQLite database path")
	n := fs.Int("n", 10, "number of runs to show")
	fs.Parse(args)

	setupLogging(false)

	hist, err := runlog.Open(*runLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runs, err := hist.RecentRuns(ctx, *n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return
	}
	for _, r := range runs {
		state := "running"
		if !r.FinishedAt.IsZero() {
			state = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second).String()
		}
		fmt.Printf("%s  %s  %-30s  total=%d ok=%d failed=%d tables=%d  %s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.InputDir,
			r.Total, r.Succeeded, r.Failed, r.Tables, state)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args)

	logger := setupLogging(*verbose)

	cfg, err := loadRunConfig(*configPath, func(*batch.Config) {})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	runner, err := batch.NewRunner(cfg, batch.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "tabpipe", Version: version}, nil)
	runner.RegisterMCP(srv)

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("mcp: serving on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "mcp: %v\n", err)
		os.Exit(1)
	}
}
