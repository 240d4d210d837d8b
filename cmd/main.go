package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	cfgPkg "github.com/saymasiddiquie/dscpl/pkg/config"
)

const usage = `Usage: dscpl [-config path] <command> [flags]

Commands:
  process   normalize the dataset into the processed corpus file
  build     build the vector index (-force rebuilds an existing one)
  chat      interactive encouragement chat
  serve     run the HTTP and websocket server
  verse     look up a scripture reference, e.g. dscpl verse "John 3:16"
`

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config, err := loadConfig(configPath)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	logger := newLogger(config.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "process":
		err = runProcess(ctx, config, logger, args)
	case "build":
		err = runBuild(ctx, config, logger, args)
	case "chat":
		err = runChat(ctx, config, logger, args)
	case "serve":
		err = runServe(ctx, config, logger, args)
	case "verse":
		err = runVerse(ctx, config, logger, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		color.Red("%s: %v", command, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*cfgPkg.Config, error) {
	config, err := cfgPkg.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Yellow("config %s", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return config, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
