package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/config"
	"promptquiz-service/internal/infra/memory"
	natspub "promptquiz-service/internal/infra/nats"
	"promptquiz-service/internal/infra/postgres"
	redisstore "promptquiz-service/internal/infra/redis"
	"promptquiz-service/internal/metrics"
	transport "promptquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(cfg *config.Config, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *cfg, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	static, fromFile, err := staticBanks(cfg.Quiz.BankFile)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	var loader memory.BankLoader = static
	if pool != nil {
		pgLoader := postgres.NewBankLoader(pool)
		if fromFile {
			for topic, questions := range static.Topics() {
				if err := pgLoader.SeedBank(ctx, topic, questions); err != nil {
					return err
				}
			}
			log.Info().Int("topics", len(static.Topics())).Msg("seeded question banks")
		}
		loader = pgLoader
	}

	bankTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var banks app.BankRepository
	if redisClient != nil {
		banks = redisstore.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
	}

	var rooms app.RoomRepository
	if redisClient != nil {
		rooms = redisstore.NewRoomStore(redisClient, redisTTL)
	} else {
		rooms = memory.NewRoomStore()
	}

	var snapshots app.SnapshotStore
	switch {
	case pool != nil:
		snapshots = postgres.NewSnapshotStore(pool)
	case redisClient != nil:
		snapshots = redisstore.NewSnapshotStore(redisClient, redisTTL)
	default:
		snapshots = memory.NewSnapshotStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	opts := []app.Option{
		app.WithSnapshotStore(snapshots),
		app.WithObserver(collector),
		app.WithRoomTTL(config.TTLDuration(cfg.Quiz.RoomTTL, 2*time.Hour)),
	}
	if cfg.NATS.URL != "" {
		natsCfg := natspub.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Stream != "" {
			natsCfg.StreamName = cfg.NATS.Stream
		}
		if cfg.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		publisher, err := natspub.NewPublisher(natsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	service := app.NewQuizService(rooms, banks, opts...)
	defer service.Close()

	mux := http.NewServeMux()
	transport.NewRESTHandler(service).Register(mux)
	mux.HandleFunc("GET /ws", transport.NewWSHandler(service, transport.Limits{
		Rate:  cfg.Server.MessageRate,
		Burst: cfg.Server.MessageBurst,
	}).ServeWS)
	mux.Handle("GET /metrics", metrics.Handler(registry))

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", transport.UserHeader},
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      corsHandler.Handler(collector.Middleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// staticBanks returns the bank file when configured, otherwise the built-in samples.
func staticBanks(path string) (*memory.StaticBankLoader, bool, error) {
	if path == "" {
		return memory.NewStaticBankLoader(sampleBanks()), false, nil
	}
	loader, err := memory.LoadBankFile(path)
	if err != nil {
		return nil, false, err
	}
	return loader, true, nil
}
