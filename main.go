package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"resonate/chat-service/internal/config"
	"resonate/chat-service/internal/db"
	"resonate/chat-service/internal/handlers"
	"resonate/chat-service/internal/middleware"
	"resonate/chat-service/internal/observability"
	"resonate/chat-service/internal/rabbitmq"
	"resonate/chat-service/internal/repositories"
	"resonate/chat-service/internal/telemetry"
	"resonate/chat-service/internal/ws"
)

const serviceName = "resonate-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	configureLogging(cfg)

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		logrus.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logrus.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logrus.Warnf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	logrus.Infof("audit publisher mode=%s", rabbitmq.Mode(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	threadRepo := repositories.NewThreadRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	registry := ws.NewRegistry()
	jwtSecret := []byte(cfg.JWTSecret)

	threadHandler := handlers.NewThreadHandler(threadRepo, messageRepo, userRepo, registry)
	threadWS := ws.NewThreadWebSocketHandler(registry, threadRepo, messageRepo, jwtSecret)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(jwtSecret)

	router.GET("/chats", authMiddleware, threadHandler.ListInbox)
	router.POST("/chats/start", authMiddleware, threadHandler.StartThread)
	router.GET("/chats/:thread_id", authMiddleware, threadHandler.GetThread)
	router.POST("/chats/:thread_id/messages", authMiddleware, threadHandler.PostThreadMessage)

	router.GET("/ws/chat/:thread_id", threadWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	logrus.Infof("starting %s on :%s", serviceName, cfg.ServerPort)
	if err := router.Run(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}

func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
