package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/domain"
	"github.com/iconidentify/tikgrabba/internal/downloader"
	"github.com/iconidentify/tikgrabba/internal/repository"
	"github.com/iconidentify/tikgrabba/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var errNoReference = errors.New("no URL given and stdin is not a terminal")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tikgrabba", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	flavor := fs.String("flavor", "", "Resolver flavor (ssstik, tikdownloader)")
	outDir := fs.String("out", "", "Output directory")
	retries := fs.Int("retries", 1, "Attempts per reference on transport failures")
	verbose := fs.Bool("v", false, "Verbose logging")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: tikgrabba [flags] [url]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "tikgrabba %s (built %s)\n", Version, BuildTime)
		return 0
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *flavor != "" {
		cfg.Resolver.Flavor = *flavor
	}
	if *outDir != "" {
		cfg.Storage.OutputPath = *outDir
	}

	ref, err := promptReference(fs.Arg(0), stdin, stdout, term.IsTerminal(int(stdin.Fd())))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return 2
	}

	var history repository.HistoryRepository
	if cfg.History.Enabled {
		h, err := repository.NewSQLiteHistoryRepository(cfg.History.Path)
		if err != nil {
			logger.Warn("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer h.Close()
			history = h
		}
	}

	svc, err := service.NewResolveService(
		service.Config{Resolver: cfg.Resolver, Storage: cfg.Storage, Worker: cfg.Worker},
		downloader.NewHTTPFetcher(cfg.Download, cfg.Storage.Overwrite, logger),
		nil,
		history,
		logger,
	)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *domain.Report
	_, err = downloader.RetryTransport(ctx, downloader.RetryConfigFrom(cfg.Download, *retries), func() (*domain.Report, error) {
		r, err := svc.Resolve(ctx, service.ResolveRequest{Reference: ref})
		report = r
		if domain.IsRetryable(err) {
			logger.Warn("attempt failed", "error", err)
		}
		return r, err
	})

	printReport(stdout, report)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// promptReference returns arg, or reads one line from in when arg is empty
// and the session is interactive.
func promptReference(arg string, in io.Reader, out io.Writer, interactive bool) (domain.MediaReference, error) {
	ref := strings.TrimSpace(arg)
	if ref == "" {
		if !interactive {
			return "", errNoReference
		}
		fmt.Fprint(out, "Video URL: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read URL: %w", err)
		}
		ref = strings.TrimSpace(line)
	}
	r := domain.MediaReference(ref)
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("%w: %q", err, ref)
	}
	return r, nil
}

func printReport(w io.Writer, r *domain.Report) {
	if r == nil {
		return
	}
	if r.HDFallbackReason != "" {
		if len(r.Outcomes) > 0 {
			fmt.Fprintf(w, "HD unavailable (%s), saved standard quality\n", r.HDFallbackReason)
		} else {
			fmt.Fprintf(w, "HD unavailable (%s)\n", r.HDFallbackReason)
		}
	}
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("saved %s (%d bytes)", o.Path, o.Bytes)
		if o.Suspicious {
			line += " [suspicious: file is unusually small]"
		}
		fmt.Fprintln(w, line)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "failed item %d: %s\n", f.Index+1, f.Error)
	}
}
