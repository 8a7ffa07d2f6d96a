package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// app holds the process-wide handles, built once at startup.
type app struct {
	config     Config
	slack      *slack.Client
	rdb        *redis.Client
	dispatcher *Dispatcher
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func newApp(ctx context.Context) (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	SetLogFormat(config.LogFormat)
	SetLogLevel(config.LogLevel)

	if err := config.validateCore(); err != nil {
		return nil, err
	}

	router, assignees, err := loadRouting(config)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	slackClient := newSlackClient(config)
	checkSlackAuth(ctx, slackClient)

	a := &app{config: config, slack: slackClient}

	var notifier Notifier
	if config.needsRedis() {
		rdb, err := newRedisClient(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.rdb = rdb
		if config.ConfirmationEnabled {
			notifier = newSlackLinerNotifier(rdb, config)
		}
	}

	a.dispatcher = NewDispatcher(DispatcherDeps{
		SigningSecret: config.SlackSigningSecret,
		BotToken:      config.SlackBotToken,
		Router:        router,
		Resolver:      NewMessageResolver(slackClient, config.ThreadSearchLimit),
		Enricher:      NewEnricher(slackClient, assignees),
		Store:         newAirtableStore(config),
		Notifier:      notifier,
	})

	Info("Starting SlackTable: environment=%s log_level=%s emojis=%v", config.Environment, config.LogLevel, router.Emojis())
	return a, nil
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.config.SlackSigningSecret == "" {
		return fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}

	g, ctx := errgroup.WithContext(ctx)
	server := NewServer(a.config.HTTPAddr, NewEventsHandler(a.dispatcher))
	g.Go(func() error {
		return server.Run(ctx)
	})
	if a.config.RedisRelayEnabled {
		g.Go(func() error {
			subscribeToReactions(ctx, a.rdb, a.dispatcher, a.config)
			return nil
		})
	}
	return g.Wait()
}

func runSocket(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := newSocketRunner(a.slack, a.dispatcher, a.config)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

func runRelay(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.rdb == nil {
		rdb, err := newRedisClient(ctx, a.config)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.rdb = rdb
	}
	subscribeToReactions(ctx, a.rdb, a.dispatcher, a.config)
	return nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "slacktable",
		Short:         "Turn Slack emoji reactions into Airtable records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the Slack Events API webhook",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "socket",
			Short: "Receive Slack events over Socket Mode",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSocket(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "relay",
			Short: "Consume relayed reaction events from Redis",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runRelay(cmd.Context())
			},
		},
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		Error("%v", err)
		stop()
		os.Exit(1)
	}
	Info("Shutting down...")
}
