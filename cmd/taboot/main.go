// Command taboot ingests infrastructure sources and runs the extraction
// pipeline from the terminal.
//
// Usage:
//
//	taboot compose -f docker-compose.yml   ingest one compose file
//	taboot files -dir ./docs               ingest a directory of documents
//	taboot extract -limit 50               extract pending documents
//	taboot status                          show pipeline health and queues
//
// Global flags (before the subcommand): -config path/to/config.json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/jmagar/taboot"
	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/ingest"
	"github.com/jmagar/taboot/reader"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	flag.Parse()

	// Structured logs to stderr; stdout is for results.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := taboot.LoadConfig(*configPath)
	if err != nil {
		fail("loading config: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "compose":
		runCompose(cfg, args)
	case "files":
		runFiles(cfg, args)
	case "extract":
		runExtract(cfg, args)
	case "status":
		runStatus(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func openPipeline(cfg taboot.Config) *taboot.Pipeline {
	pipe, err := taboot.New(cfg)
	if err != nil {
		fail("starting pipeline: %v", err)
	}
	return pipe
}

func runCompose(cfg taboot.Config, args []string) {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	path := fs.String("f", "docker-compose.yml", "Compose file to ingest")
	fs.Parse(args)

	pipe := openPipeline(cfg)
	defer pipe.Close()

	svc := ingest.NewService(pipe.Writer(), pipe.Docs())
	res, err := svc.Run(context.Background(), reader.NewComposeReader(*path, cfg.ExtractorVersion))
	if err != nil {
		switch {
		case errors.Is(err, reader.ErrFileMissing):
			fail("compose file not found: %s", *path)
		case errors.Is(err, reader.ErrInvalidPort):
			fail("invalid port mapping: %v", err)
		case errors.Is(err, reader.ErrMalformedYAML):
			fail("malformed compose file: %v", err)
		default:
			fail("ingesting %s: %v", *path, err)
		}
	}
	printResult(res)
}

func runFiles(cfg taboot.Config, args []string) {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	dir := fs.String("dir", ".", "Directory (or single file) to ingest")
	fs.Parse(args)

	pipe := openPipeline(cfg)
	defer pipe.Close()

	svc := ingest.NewService(pipe.Writer(), pipe.Docs())
	res, err := svc.Run(context.Background(), reader.NewFileReader(*dir))
	if err != nil {
		if errors.Is(err, reader.ErrFileMissing) {
			fail("path not found: %s", *dir)
		}
		fail("ingesting %s: %v", *dir, err)
	}
	printResult(res)
}

func runExtract(cfg taboot.Config, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Max documents to process (0 = all pending)")
	fs.Parse(args)

	pipe := openPipeline(cfg)
	defer pipe.Close()

	res, err := pipe.ProcessPending(context.Background(), *limit)
	if err != nil {
		fail("extraction batch: %v", err)
	}

	fmt.Printf("processed: %d\n", res.Processed)
	fmt.Printf("succeeded: %s%d%s\n", colorGreen, res.Succeeded, colorReset)
	color := colorGreen
	if res.Failed > 0 {
		color = colorRed
	}
	fmt.Printf("failed:    %s%d%s\n", color, res.Failed, colorReset)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func runStatus(cfg taboot.Config) {
	pipe := openPipeline(cfg)
	defer pipe.Close()

	health := pipe.Health(context.Background())
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := false
	for _, name := range names {
		state := health[name]
		switch {
		case state == "ok":
			fmt.Printf("%-10s %sok%s\n", name, colorGreen, colorReset)
		case name == "graph" && state == "unconfigured":
			fmt.Printf("%-10s unconfigured\n", name)
		case name == "llm":
			fmt.Printf("%-10s %s\n", name, state)
		default:
			fmt.Printf("%-10s %s%s%s\n", name, colorRed, state, colorReset)
			failed = true
		}
	}

	for _, q := range []string{cache.QueueExtraction, cache.QueueDLQ} {
		depth, err := pipe.Cache().QueueDepth(q)
		if err != nil {
			fail("inspecting %s: %v", q, err)
		}
		fmt.Printf("%-20s %d\n", q, depth)
	}

	if failed {
		os.Exit(1)
	}
}

func printResult(res *ingest.Result) {
	for family, n := range res.Nodes {
		fmt.Printf("%s%s%s: %d nodes\n", colorGreen, family, colorReset, n)
	}
	for family, n := range res.Edges {
		fmt.Printf("%s%s%s: %d edges\n", colorGreen, family, colorReset, n)
	}
	if res.Skipped > 0 {
		fmt.Printf("%sskipped%s: %d edges with missing endpoints\n", colorRed, colorReset, res.Skipped)
	}
	if res.Documents > 0 {
		fmt.Printf("%sdocuments%s: %d\n", colorGreen, colorReset, res.Documents)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"error: "+format+colorReset+"\n", args...)
	os.Exit(1)
}
