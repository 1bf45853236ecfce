// Package main provides a command line front end for the Kyobo metadata service.
//
// Usage:
//
//	go run ./cmd/kyobo -search 데미안 -max 5
//	go run ./cmd/kyobo -search 데미안 -details
//	go run ./cmd/kyobo -id S000001234567
//	go run ./cmd/kyobo -cover https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9788937460449.jpg
//	go run ./cmd/kyobo -health
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/di"
	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/service"
)

// runTimeout bounds one invocation including retries and enrichment.
const runTimeout = 5 * time.Minute

type options struct {
	query   string
	id      string
	cover   string
	max     int
	details bool
	health  bool
	stats   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kyobo", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.query, "search", "", "Search keyword")
	fs.StringVar(&opts.id, "id", "", "Fetch one book by product id")
	fs.StringVar(&opts.cover, "cover", "", "Download a cover image and print it as a data URI")
	fs.IntVar(&opts.max, "max", 0, "Maximum search results (default: configured max-results)")
	fs.BoolVar(&opts.details, "details", false, "Enrich search results from their detail pages")
	fs.BoolVar(&opts.health, "health", false, "Check whether the bookstore is reachable")
	fs.BoolVar(&opts.stats, "stats", false, "Print cache statistics after the command")

	cfg, err := config.LoadFlags(fs, args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 2
	}
	if opts.query == "" && opts.id == "" && opts.cover == "" && !opts.health {
		fs.Usage()
		return 2
	}

	injector := di.NewContainer(cfg)
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(stderr, "Failed to bootstrap: %v\n", err)
		return 1
	}
	log := do.MustInvoke[*logger.Logger](injector)
	defer func() {
		if err := injector.Shutdown(); err != nil {
			log.Error("Shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	svc := do.MustInvoke[*service.BookService](injector)
	result, err := execute(ctx, svc, opts)
	if err != nil {
		log.Error("Command failed", "error", err, "code", errors.CodeOf(err))
		fmt.Fprintln(stderr, errors.UserMessage(err))
		return 1
	}

	if opts.stats {
		result = map[string]any{"result": result, "cache": svc.CacheStats()}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, svc *service.BookService, opts options) (any, error) {
	switch {
	case opts.health:
		return map[string]bool{"online": svc.HealthCheck(ctx)}, nil
	case opts.id != "":
		return svc.GetBookByID(ctx, opts.id)
	case opts.cover != "":
		return svc.CoverImage(ctx, opts.cover)
	default:
		return svc.Search(ctx, service.SearchRequest{
			Query:          opts.query,
			MaxResults:     opts.max,
			IncludeDetails: opts.details,
		})
	}
}
