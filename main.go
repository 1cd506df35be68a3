package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"nexus-chat/internal/auth"
	"nexus-chat/internal/chat"
	"nexus-chat/internal/config"
	"nexus-chat/internal/db"
	"nexus-chat/internal/handlers"
	"nexus-chat/internal/middleware"
	"nexus-chat/internal/observability"
	"nexus-chat/internal/rabbitmq"
	"nexus-chat/internal/repositories"
	"nexus-chat/internal/telemetry"
	"nexus-chat/internal/ws"
)

const serviceName = "nexus-chat"

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit_log.chats", serviceName, cfg.Environment)

	verifier := auth.NewVerifier(cfg.JWTSecret)

	threadRepo := repositories.NewThreadRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	chatService := chat.NewService(threadRepo, messageRepo, hub, cfg.MaxMessageLen)

	chatHandler := handlers.NewChatHandler(chatService, auditEmitter)
	gateway := ws.NewGatewayHandler(hub, chatService, verifier, cfg.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListThreads)
	router.POST("/chats/start", authMiddleware, chatHandler.StartThread)
	router.GET("/chats/:thread_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chats/:thread_id/messages", authMiddleware, chatHandler.PostMessage)

	router.GET("/ws/chat", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
