package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/deepresearch/internal/app"
	"github.com/timmy/deepresearch/internal/config"
	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
	"github.com/timmy/deepresearch/internal/service"
)

const cancelGrace = 30 * time.Second

// fileList collects repeated -f flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var files fileList
	query := flag.String("q", "", "Research question (required)")
	flag.Var(&files, "f", "Document or directory to include as context (repeatable)")
	depth := flag.String("depth", string(domain.DepthStandard), "Research depth: quick, standard, deep, maximum")
	format := flag.String("format", string(domain.FormatMarkdown), "Output format: summary, detailed, markdown, json")
	scope := flag.String("scope", string(domain.ScopeAll), "Source scope: web, academic, news, all")
	citations := flag.Bool("citations", true, "Ask for inline citations and a source list")
	refine := flag.Bool("refine", false, "Run a consistency pass over the finished report")
	output := flag.String("o", "", "Write the report to this file instead of stdout")
	upload := flag.Bool("upload", false, "Upload the finished report to object storage")
	configPath := flag.String("config", "", "Path to config file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	appLogger := logger.New(&logger.Config{
		Level:       level,
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "deepresearch-cli",
	})
	logger.SetDefaultLogger(appLogger)

	if strings.TrimSpace(*query) == "" {
		fmt.Fprintln(os.Stderr, "error: -q is required")
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer services.Close()

	docs, err := services.Loader.LoadFiles(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	orch := services.Orchestrator
	job, err := orch.Submit(ctx, service.SubmitRequest{
		Query:     *query,
		Documents: docs,
		Options: domain.Options{
			Depth:            domain.Depth(*depth),
			OutputFormat:     domain.OutputFormat(*format),
			SourceScope:      domain.SourceScope(*scope),
			IncludeCitations: *citations,
			Refine:           *refine,
		},
	}, printEvent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "Job %s submitted\n", job.ID)

	// One job per process: the orchestrator is idle once it ends.
	if err := orch.Wait(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Cancelling...")
		cancelCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
		defer cancel()
		remoteOK, err := orch.Cancel(cancelCtx, job.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else if !remoteOK {
			fmt.Fprintln(os.Stderr, "warning: the remote service did not confirm cancellation")
		}
		_ = orch.Wait(cancelCtx)
	}

	final, err := orch.GetStatus(job.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if final.Status != domain.JobStatusCompleted {
		msg := final.Error
		if msg == "" {
			msg = string(final.Status)
		}
		fmt.Fprintf(os.Stderr, "Research %s: %s\n", final.Status, msg)
		return 1
	}

	if err := writeReport(*output, final.Content); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if *upload {
		if services.Exporter == nil {
			fmt.Fprintln(os.Stderr, "error: -upload requires storage.enabled")
			return 1
		}
		url, err := services.Exporter.Export(context.Background(), final)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Report uploaded: %s\n", url)
	}
	return 0
}

func printEvent(e domain.Event) {
	switch e.Type {
	case domain.EventStart:
		fmt.Fprintln(os.Stderr, "Research started")
	case domain.EventProgress:
		if e.Data != nil && e.Data.Progress != nil {
			fmt.Fprintf(os.Stderr, "Progress: %d%%\n", *e.Data.Progress)
		}
	case domain.EventSource:
		if e.Data != nil && e.Data.Source != nil {
			fmt.Fprintf(os.Stderr, "Source: %s %s\n", e.Data.Source.Title, e.Data.Source.URL)
		}
	case domain.EventComplete:
		fmt.Fprintln(os.Stderr, "Research completed")
	case domain.EventError:
		if e.Data != nil {
			fmt.Fprintf(os.Stderr, "Research failed: %s\n", e.Data.Error)
		}
	}
}

func writeReport(path, content string) error {
	if path == "" {
		_, err := fmt.Fprintln(os.Stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	return nil
}
