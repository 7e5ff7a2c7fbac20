package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"duochat/internal/auth"
	"duochat/internal/config"
	"duochat/internal/db"
	"duochat/internal/handlers"
	"duochat/internal/middleware"
	"duochat/internal/observability"
	"duochat/internal/rabbitmq"
	"duochat/internal/repositories"
	"duochat/internal/telemetry"
	"duochat/internal/timeline"
	"duochat/internal/ws"
)

const serviceName = "duochat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), serviceName, cfg.Server.Environment, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("redis unavailable, broker runs local-only: %v", err)
			rdb = nil
		}
	}

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		log.Printf("amqp events disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.duochat", serviceName, cfg.Server.Environment)

	profileRepo := repositories.NewProfileRepo(database)
	convRepo := repositories.NewConversationRepo(database)
	msgRepo := repositories.NewMessageRepo(database)

	broker := timeline.NewBroker(timeline.RepoStore{Messages: msgRepo, Profiles: profileRepo}, rdb)
	defer broker.Close()

	gate := auth.NewGate(cfg.Auth.GateSecretHash)
	identity := auth.NewJWTIdentityProvider(cfg.Auth.IdentitySecret)
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, serviceName, 24*time.Hour)

	hub := ws.NewHub()

	authHandler := handlers.NewAuthHandler(gate, identity, sessions, profileRepo, broker, audit)
	directoryHandler := handlers.NewDirectoryHandler(profileRepo)
	chatHandler := handlers.NewChatHandler(convRepo, msgRepo, profileRepo, broker, audit)

	timelineWS := ws.NewTimelineWSHandler(hub, broker, convRepo, sessions)
	directoryWS := ws.NewDirectoryWSHandler(hub, broker, sessions)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(sessions)
	presence := middleware.Presence(profileRepo)

	router.POST("/gate", authHandler.CheckGate)
	router.POST("/session", authHandler.StartSession)

	api := router.Group("/", authMiddleware, presence)
	api.PUT("/me/display-name", authHandler.UpdateDisplayName)

	api.GET("/users", directoryHandler.ListProfiles)
	api.GET("/users/:user_id", directoryHandler.GetProfile)

	api.GET("/chats", chatHandler.ListConversations)
	api.POST("/chats/start", chatHandler.StartConversation)
	api.GET("/chats/:conversation_id/messages", chatHandler.GetMessages)
	api.POST("/chats/:conversation_id/messages", chatHandler.PostMessage)
	api.POST("/chats/:conversation_id/messages/:message_id/reactions", chatHandler.ToggleReaction)
	api.POST("/chats/:conversation_id/read", chatHandler.MarkRead)
	api.DELETE("/chats/:conversation_id/messages/:message_id", chatHandler.DeleteMessage)
	api.GET("/chats/:conversation_id/html", chatHandler.RenderTimeline)

	router.GET("/ws/chats/:conversation_id", timelineWS.Handle)
	router.GET("/ws/directory", directoryWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.Server.DebugRoutes)

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
