package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/config"
	"github.com/vedran77/huddle/internal/database"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/presence"
	"github.com/vedran77/huddle/internal/relay"
	"github.com/vedran77/huddle/internal/repository"
	"github.com/vedran77/huddle/internal/repository/badgerdb"
	postgresrepo "github.com/vedran77/huddle/internal/repository/postgres"
	"github.com/vedran77/huddle/internal/service"
	"github.com/vedran77/huddle/internal/transport/http/handlers"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
	"github.com/vedran77/huddle/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// stores is the repository set for whichever backend is configured.
type stores struct {
	members       repository.MembershipRepository
	channels      repository.ChannelRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	health        func(*http.Request) error
	close         func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Services
	channelMessages := service.NewMessageService(domain.ParentChannel, st.messages, st.members)
	directMessages := service.NewMessageService(domain.ParentConversation, st.messages, st.members)
	channelMessages.SetPageLimit(cfg.MessagePageLimit)
	directMessages.SetPageLimit(cfg.MessagePageLimit)
	conversations := service.NewConversationService(st.conversations, st.members)
	access := service.NewAccessService(st.members, st.channels, st.conversations)

	// Real-time
	hub := presence.NewHub(
		presence.WithTypingTimeout(cfg.TypingTimeout),
		presence.WithLogger(logger.With().Str("component", "presence").Logger()),
	)
	gateway := ws.NewGateway(hub, access, ws.Config{
		SendBuffer:     cfg.WSSendBuffer,
		RateLimit:      cfg.WSRateLimit,
		RateBurst:      cfg.WSRateBurst,
		AllowedOrigins: cfg.Origins(),
	}, logger)
	gateway.HandleMessages(domain.ParentChannel, channelMessages)
	gateway.HandleMessages(domain.ParentConversation, directMessages)

	notifier := ws.NewHubNotifier(gateway)
	hub.OnTypingStopped(notifier.TypingStopped)
	for _, svc := range []*service.MessageService{channelMessages, directMessages} {
		svc.SetNotifier(notifier)
		svc.SetTypingClearer(hub)
	}

	var rel *relay.Relay
	if cfg.RedisURL != "" {
		rel, err = relay.New(ctx, cfg.RedisURL, cfg.RedisChannel, logger)
		if err != nil {
			return err
		}
		defer rel.Close()
		hub.SetForwarder(rel)
	}

	// HTTP
	identities := middleware.NewJWTProvider(cfg.JWTSecret)
	router := handlers.NewRouter(handlers.RouterDeps{
		Identities:     identities,
		Channel:        handlers.NewMessageHandler(channelMessages, access, logger),
		Direct:         handlers.NewMessageHandler(directMessages, access, logger),
		Conversations:  handlers.NewConversationHandler(conversations, logger),
		Socket:         ws.ServeWS(gateway, identities),
		Health:         st.health,
		AllowedOrigins: cfg.Origins(),
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if rel != nil {
		g.Go(func() error { return rel.Run(ctx, gateway) })
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		// Sockets first: Shutdown does not wait for hijacked connections.
		gateway.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &stores{
			members:       postgresrepo.NewMemberRepo(pool),
			channels:      postgresrepo.NewChannelRepo(pool),
			conversations: postgresrepo.NewConversationRepo(pool),
			messages:      postgresrepo.NewMessageRepo(pool),
			health:        func(r *http.Request) error { return pool.Ping(r.Context()) },
			close:         pool.Close,
		}, nil
	}

	db, err := badgerdb.Open(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}
	if cfg.SeedFile != "" {
		fx, err := badgerdb.LoadFixtures(ctx, db, cfg.SeedFile)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().
			Int("users", len(fx.Users)).
			Int("members", len(fx.Members)).
			Int("channels", len(fx.Channels)).
			Msg("loaded fixtures")
	}
	logger.Info().Str("path", cfg.BadgerPath).Msg("using embedded badger store")
	return &stores{
		members:       badgerdb.NewMemberRepo(db),
		channels:      badgerdb.NewChannelRepo(db),
		conversations: badgerdb.NewConversationRepo(db),
		messages:      badgerdb.NewMessageRepo(db),
		health: func(*http.Request) error {
			if db.IsClosed() {
				return errors.New("badger store is closed")
			}
			return nil
		},
		close: func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("closing badger")
			}
		},
	}, nil
}
