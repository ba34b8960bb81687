// Command studyplanner runs the study planner's reminder and notification
// loops against the local plan database until interrupted.
//
// Flags:
//
//	--config        path to the YAML config file
//	--env-file      optional dotenv file with STUDYPLANNER_* overrides (default .env)
//	--write-config  write the effective configuration to --config and exit
//	--summary       print the plan summary and exit
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/study-planner/internal/app"
	"github.com/nhle/study-planner/internal/model"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	writeConfig := flag.Bool("write-config", false, "write the effective configuration and exit")
	summaryOnly := flag.Bool("summary", false, "print the plan summary and exit")
	flag.Parse()

	// A missing env file is fine; variables already set are not overridden.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load env file %s: %v", *envFile, err)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *writeConfig {
		if err := model.SaveConfig(*configPath, cfg); err != nil {
			log.Fatalf("write config: %v", err)
		}
		fmt.Println("wrote", *configPath)
		return
	}

	logger := app.NewLogger(cfg.Log)

	if err := run(cfg, logger, *summaryOnly); err != nil {
		logger.Error("planner stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *model.AppConfig, logger *slog.Logger, summaryOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.Summary())
	if summaryOnly {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}
