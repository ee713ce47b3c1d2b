/**
 * @description
 * This is the main entry point for the treasury-service. It is responsible for
 * initializing all components of the service: configuration, the database (or the
 * in-memory store for local runs), the message broker, the Redis rate limiter, the
 * reconciliation scheduler, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/api"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/app"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/config"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	rmrabbit "github.com/Abdul-Basith14/AuroraTreasury-sub000/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	loc := cfg.Location()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	log.Printf("level=info component=bootstrap msg=\"starting treasury-service\" port=%s timezone=%s", cfg.ServerPort, loc)

	var repository store.Repository
	if cfg.DatabaseURL == "" {
		log.Println("level=warn component=bootstrap msg=\"DATABASE_URL not set; using in-memory store, data will not survive a restart\"")
		repository = store.NewMemoryRepository()
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = cfg.DBMaxConns
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.EnsureSchema(schemaCtx, dbpool); err != nil {
			cancelSchema()
			log.Fatalf("level=fatal component=bootstrap msg=\"schema bootstrap failed\" err=%v", err)
		}
		cancelSchema()
		log.Println("level=info component=bootstrap msg=\"database connected\"")
		repository = store.NewPostgresRepository(dbpool)
	}

	// Initialize the RabbitMQ producer to publish events.
	var producer rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"RABBITMQ_URL not set; events will be dropped\"")
	} else if rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var limiter app.MemberLimiter
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; member rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; member rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; member rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisMemberLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.MemberActionRateLimitPerMinute)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	treasuryService := app.NewService(repository, producer, app.Options{
		Location:         loc,
		WalletMaxRetries: cfg.WalletMaxRetries,
		MemberLimiter:    limiter,
	})

	// Mirror the user directory so seeding sees every member.
	if cfg.RabbitMQURL != "" {
		rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; member sync disabled\" err=%v", err)
		} else {
			defer rabbitConsumer.Close()
			memberConsumer := app.NewMemberEventConsumer(repository)
			if err := rabbitConsumer.ConsumeWithBindings(cfg.EventsExchange, cfg.MemberEventQueue, memberConsumer.Bindings()); err != nil {
				log.Fatalf("level=fatal component=bootstrap msg=\"member consumer start failed\" err=%v", err)
			}
		}
	}

	jobs := app.NewJobs(treasuryService, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.ReconciliationSchedule, loc)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}

	handler := api.NewHandler(treasuryService, loc)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: api.AuthConfig{
			JWKSURL:    cfg.JWKSURL,
			HMACSecret: cfg.JWTHMACSecret,
			Audience:   cfg.JWTAudience,
			Issuer:     cfg.JWTIssuer,
		},
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.AllowedOrigins(),
	})
	if cfg.JWKSURL == "" && cfg.JWTHMACSecret == "" {
		log.Println("level=warn component=bootstrap msg=\"no JWKS_URL or JWT_HMAC_SECRET configured; every authenticated route will reject requests\"")
	}
	if len(cfg.AllowedOrigins()) == 0 {
		log.Println("level=info component=bootstrap msg=\"CORS_ALLOWED_ORIGINS not set; cross-origin requests are not allowed\"")
	}
	if cfg.InternalAPIKey == "" {
		log.Println("level=warn component=bootstrap msg=\"INTERNAL_API_KEY not set; internal routes are unauthenticated\"")
	}

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
