package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/meshchat/bridge/internal/bridge"
	"github.com/meshchat/bridge/internal/config"
	"github.com/meshchat/bridge/internal/directory"
	"github.com/meshchat/bridge/internal/genai"
	"github.com/meshchat/bridge/internal/guard"
	"github.com/meshchat/bridge/internal/handlers"
	"github.com/meshchat/bridge/internal/identity"
	"github.com/meshchat/bridge/internal/logger"
	"github.com/meshchat/bridge/internal/orchestrator"
	"github.com/meshchat/bridge/internal/server"
	"github.com/meshchat/bridge/internal/transport"
	"github.com/meshchat/bridge/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideConnectionDetails,
			provideIdentityClient,
			provideChatClient,
			provideIdentityCache,
			provideGenAIClient,
			provideDirectory,
			provideOrchestrator,
			providePublisher,
			provideGuard,
			provideProcessor,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideAIHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideUsersHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideConnectionDetails(cfg config.Config) (transport.ConnectionDetails, error) {
	details, err := transport.ParseConnectionString(cfg.Transport.ConnectionString)
	if err != nil {
		return transport.ConnectionDetails{}, fmt.Errorf("transport connection string: %w", err)
	}
	return details, nil
}

func provideIdentityClient(log *slog.Logger, details transport.ConnectionDetails) *transport.IdentityClient {
	return transport.NewIdentityClient(log, details, nil)
}

func provideChatClient(log *slog.Logger, details transport.ConnectionDetails) *transport.ChatClient {
	return transport.NewChatClient(log, details, nil)
}

func provideIdentityCache(log *slog.Logger, client *transport.IdentityClient) *identity.Cache {
	return identity.NewCache(log, client)
}

func provideGenAIClient(log *slog.Logger, cfg config.Config) *genai.Client {
	timeout := time.Duration(cfg.Stream.TimeoutSeconds) * time.Second
	return genai.NewClient(log, cfg.Stream.URL, timeout)
}

func provideDirectory(cfg config.Config) *directory.Store {
	return directory.NewSeededStore(cfg.Transport.BotDisplayName)
}

func provideOrchestrator(log *slog.Logger, store *directory.Store, identityClient *transport.IdentityClient, chatClient *transport.ChatClient, details transport.ConnectionDetails) *orchestrator.Orchestrator {
	return orchestrator.New(log, store, identityClient, chatClient, details.Endpoint)
}

func providePublisher(log *slog.Logger, cfg config.Config) *bridge.Publisher {
	return bridge.NewPublisher(log, cfg.Events.TopicEndpoint, cfg.Events.TopicKey, nil)
}

func provideGuard(cfg config.Config) guard.Guard {
	return guard.New(cfg.Transport.BotDisplayName, cfg.Transport.BotPrefix)
}

func provideProcessor(log *slog.Logger, g guard.Guard, replier *genai.Client, cache *identity.Cache, chatClient *transport.ChatClient, cfg config.Config) *webhook.Processor {
	return webhook.NewProcessor(log, g, replier, cache, chatClient, cfg.Transport.BotDisplayName, cfg.Transport.BotPrefix)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideWebhookHandler(log *slog.Logger, processor *webhook.Processor) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, processor)
}

func provideAIHandler(log *slog.Logger, publisher *bridge.Publisher, orch *orchestrator.Orchestrator) *handlers.AIHandler {
	return handlers.NewAIHandler(log, publisher, orch)
}

func provideChatHandler(log *slog.Logger, orch *orchestrator.Orchestrator) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, orch)
}

func provideUsersHandler(log *slog.Logger, store *directory.Store, orch *orchestrator.Orchestrator) *handlers.UsersHandler {
	return handlers.NewUsersHandler(log, store, orch)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting chat bridge", slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
