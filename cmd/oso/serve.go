package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/osobot/oso/internal/capability"
	"github.com/osobot/oso/internal/config"
	"github.com/osobot/oso/internal/dashboard"
	"github.com/osobot/oso/internal/db"
	"github.com/osobot/oso/internal/ingest"
	"github.com/osobot/oso/internal/notify"
	"github.com/osobot/oso/internal/pipeline"
	"github.com/osobot/oso/internal/reddit"
	"github.com/osobot/oso/internal/store"
	"github.com/osobot/oso/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: ingestion, pipeline workers, and dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := openStoreDB(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	st := store.New(gormDB, cfg.Pipeline.LeaseTimeout())

	rc, err := reddit.New(ctx, reddit.Opts{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
		Subreddit:    cfg.Reddit.Subreddit,
	})
	if err != nil {
		return err
	}
	me, err := rc.Me(ctx)
	if err != nil {
		return fmt.Errorf("verify reddit credentials: %w", err)
	}
	fmt.Fprintf(out, "Logged in as /u/%s\n", me)

	caps, err := capability.New(ctx, capability.Opts{
		APIKey:          cfg.Gemini.APIKey,
		ClassifierModel: cfg.Gemini.ClassifierModel,
		StoryModel:      cfg.Gemini.StoryModel,
		EmbeddingModel:  cfg.Gemini.EmbeddingModel,
		MaxStoryChars:   cfg.Gemini.MaxStoryChars,
	})
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(pipeline.Options{
		Store:          st,
		Classifier:     caps,
		Redactor:       caps,
		Summarizer:     caps,
		Replier:        caps,
		Embedder:       caps,
		Publisher:      rc,
		Notifier:       notifier,
		MaxRetries:     cfg.Pipeline.MaxRetries,
		AdapterTimeout: cfg.Pipeline.AdapterTimeout(),
		Lookback:       cfg.Pipeline.Lookback(),
		PublishEnabled: cfg.Pipeline.PublishEnabled,
		PublishMinGap:  cfg.Pipeline.PublishMinGap(),
	})
	if err != nil {
		return err
	}

	ingestor, err := ingest.New(rc, st, cfg.Ingest.Schedule, cfg.Ingest.Limit)
	if err != nil {
		return err
	}

	w, err := worker.New(worker.Options{
		Store: st,
		Pipe:  pipe,
		Batch: cfg.Pipeline.ClaimBatch,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Starting %d workers, ingest schedule %q, dashboard on :%d\n",
		cfg.Workers, cfg.Ingest.Schedule, cfg.Dashboard.Port)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return ingestor.Run(ctx) })
	eg.Go(func() error { return worker.RunPool(ctx, w, cfg.Workers) })
	eg.Go(func() error {
		return dashboard.Start(ctx, dashboard.StartOpts{
			Store: st,
			Port:  cfg.Dashboard.Port,
			Out:   out,
		})
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		log.Printf("shutdown complete")
		return nil
	}
	return err
}

// buildNotifier wires whichever alert channels the config enables.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var channels notify.Multi
	if cfg.Notify.Discord.ChannelID != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, d)
	}
	if cfg.Notify.Slack.ChannelID != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, s)
	}
	if len(channels) == 0 {
		return nil, nil
	}
	return channels, nil
}
