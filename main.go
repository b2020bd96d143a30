package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"school-chat/internal/auth"
	"school-chat/internal/cache"
	"school-chat/internal/config"
	"school-chat/internal/db"
	"school-chat/internal/handlers"
	"school-chat/internal/health"
	"school-chat/internal/logging"
	"school-chat/internal/membership"
	"school-chat/internal/messaging"
	"school-chat/internal/middleware"
	"school-chat/internal/observability"
	"school-chat/internal/rabbitmq"
	"school-chat/internal/repositories"
	"school-chat/internal/repositories/memory"
	"school-chat/internal/storage"
	"school-chat/internal/telemetry"
	"school-chat/internal/ws"
)

const serviceName = "school-chat"

type stores struct {
	groups   repositories.GroupRepository
	blocks   repositories.BlockRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	sql      *sqlx.DB
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := memory.Open()
		return stores{groups: mem.Groups(), blocks: mem.Blocks(), messages: mem.Messages(), users: mem.Users()}, nil
	}
	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return stores{}, err
	}
	return stores{
		groups:   repositories.NewGroupRepo(database),
		blocks:   repositories.NewBlockRepo(database),
		messages: repositories.NewMessageRepo(database),
		users:    repositories.NewUserRepo(database),
		sql:      database,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, serviceName)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.sql != nil {
		defer st.sql.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Env, logger)

	var rdb *redis.Client
	if opts, err := cache.Options(cfg.RedisURL); err != nil {
		return err
	} else if opts != nil {
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}
	var profiles messaging.ProfileSource = messaging.UserProfiles{Users: st.users}
	if rdb != nil {
		profiles = cache.NewProfileCache(rdb, profiles, cfg.ProfileCacheTTL, logger)
	}

	authenticator := auth.NewAuthenticator(auth.NewValidator(cfg.JWTSecret), st.users)
	resolver := membership.NewResolver(st.groups, st.blocks, st.users)
	messages := messaging.NewService(st.messages, profiles)

	uploads, err := storage.NewStore(cfg.UploadDir, cfg.UploadURLPrefix, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}

	groupRegistry := ws.NewGroupRegistry(logger)
	notificationRegistry := ws.NewNotificationRegistry(logger)
	lifecycle := ws.NewLifecycle(publisher, logger)

	groupWS := ws.NewGroupWebSocketHandler(ws.NewGroupServer(ws.GroupServerDeps{
		Auth:          authenticator,
		Access:        resolver,
		Messages:      messages,
		Groups:        groupRegistry,
		Notifications: notificationRegistry,
		Lifecycle:     lifecycle,
		Logger:        logger,
		WriteTimeout:  cfg.WSWriteTimeout,
	}))
	notificationWS := ws.NewNotificationServer(authenticator, notificationRegistry, lifecycle, logger, cfg.NotifyKeepalive, cfg.WSWriteTimeout)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		otelgin.Middleware(serviceName),
		observability.HTTPMetricsMiddleware(),
		gin.Recovery(),
	)

	handlers.RegisterRoutes(router, handlers.Routes{
		Groups:   handlers.NewGroupHandler(st.groups, st.blocks, st.users, resolver, messages, audit, logger),
		Messages: handlers.NewMessageHandler(messages, audit, logger),
		Uploads:  handlers.NewUploadHandler(uploads, logger),
		Auth:     middleware.AuthMiddleware(authenticator),
	})
	handlers.RegisterDebugRoutes(router, handlers.DebugRoutes{
		Audit:         audit,
		PublisherMode: rabbitmq.PublisherMode(publisher),
		Rooms:         groupRegistry,
		Notifications: notificationRegistry,
	}, cfg.DebugRoutes)

	router.GET("/chat/ws/groups/:group_id", groupWS.Handle)
	router.GET("/chat/ws/notifications", notificationWS.Handle)
	router.Static(uploads.URLPrefix(), uploads.Dir())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	errCh := make(chan error, 2)

	if cfg.GRPCPort != "" {
		var checks []health.Check
		if st.sql != nil {
			checks = append(checks, st.sql.PingContext)
		}
		if rdb != nil {
			checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		}
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		hs := health.NewServer(logger, 15*time.Second, checks...)
		go func() {
			logger.Info("grpc health listening", zap.String("port", cfg.GRPCPort))
			errCh <- hs.Serve(ctx, lis)
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
