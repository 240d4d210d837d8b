package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/saymasiddiquie/dscpl/internal/models"
	cfgPkg "github.com/saymasiddiquie/dscpl/pkg/config"
	"github.com/saymasiddiquie/dscpl/pkg/corpus"
	"github.com/saymasiddiquie/dscpl/pkg/respond"
	"github.com/saymasiddiquie/dscpl/server"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func runProcess(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	out := fs.String("out", config.Corpus.ProcessedPath, "Processed corpus output path")
	granularityFlag := fs.String("granularity", config.Corpus.Granularity, "Unit granularity: chapter or verse")
	fs.Parse(args)

	granularity, err := corpus.ParseGranularity(*granularityFlag)
	if err != nil {
		return err
	}

	spinner := getSpinner(" Reading dataset...")
	records, err := corpus.ReadDataset(config.Corpus.DatasetDir, config.Corpus.Versions, logger)
	spinner.Finish()
	if err != nil {
		return err
	}

	result, err := corpus.NewNormalizer(corpus.NormalizerConfig{
		Granularity: granularity,
		Logger:      logger,
	}).Normalize(records)
	if err != nil {
		return err
	}

	if err := corpus.WriteProcessed(*out, result.Units); err != nil {
		return err
	}

	color.Green("✓ Read %d records\n", len(records))
	if len(result.Skipped) > 0 {
		color.Yellow("! Skipped %d malformed or duplicate records\n", len(result.Skipped))
	}
	color.Green("✓ Wrote %d %s units to %s\n", len(result.Units), granularity, *out)
	return nil
}

func runBuild(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	force := fs.Bool("force", false, "Rebuild even if an index exists")
	fs.Parse(args)

	var bar *progressbar.ProgressBar
	a, err := newApp(ctx, config, logger, appOptions{
		requireIndex: true,
		onProgress: func(done, total int) {
			if bar == nil {
				bar = getProgressBar(total, " Embedding chunks")
			}
			bar.Set(done)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if !*force {
		idx, err := a.store.Load(ctx)
		if err == nil {
			color.Cyan("Index at %s already has %d entries (use -force to rebuild)\n", a.store.Location(), idx.Len())
			return nil
		}
		if !models.IsIndexMissing(err) {
			return err
		}
	}

	idx, err := a.manager.Rebuild(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}
	color.Green("✓ Indexed %d chunks at %s\n", idx.Len(), a.store.Location())
	return nil
}

func runChat(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, args []string) error {
	a, err := newApp(ctx, config, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	color.Cyan("\nChat with DSCPL (type 'exit' to quit, '/verse <reference>' to look up a passage)")
	color.Cyan("Topics: %s", strings.Join(respond.Topics(), ", "))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	var history []string

	for {
		userPrompt("\nYou: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case strings.ToLower(line) == "exit":
			return nil
		case strings.HasPrefix(line, "/verse"):
			reference := strings.TrimSpace(strings.TrimPrefix(line, "/verse"))
			if reference == "" {
				color.Yellow("Usage: /verse <reference>")
				continue
			}
			assistantPrompt("\nDSCPL: %s\n", a.verses.Lookup(ctx, reference))
		default:
			spinner := getSpinner(" Searching scripture...")
			response := a.selector.Respond(ctx, line, strings.Join(history, "\n"))
			spinner.Finish()
			history = append(history, response)
			assistantPrompt("\nDSCPL: %s\n", response)
		}
	}
}

func runServe(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", config.Server.Addr, "Listen address")
	fs.Parse(args)

	a, err := newApp(ctx, config, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewWSServer(server.Config{
		Addr:           *addr,
		AllowedOrigins: config.Server.AllowedOrigins,
		Logger:         logger,
	}, a.selector, a.verses)
	return srv.ListenAndServe(ctx)
}

func runVerse(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, args []string) error {
	reference := strings.TrimSpace(strings.Join(args, " "))
	if reference == "" {
		return errors.New("usage: dscpl verse <reference>")
	}

	client, err := newVerseClient(config, logger)
	if err != nil {
		return err
	}
	fmt.Println(client.Lookup(ctx, reference))
	return nil
}
