package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "github.com/hachimB/student-assistant/internal/app"
	"github.com/hachimB/student-assistant/internal/bootstrap"
	"github.com/hachimB/student-assistant/internal/cache"
	"github.com/hachimB/student-assistant/internal/chunker"
	"github.com/hachimB/student-assistant/internal/platform/rabbitmq"
	"github.com/hachimB/student-assistant/internal/prompt"
	"github.com/hachimB/student-assistant/internal/repository"
	"github.com/hachimB/student-assistant/internal/retriever"
	"github.com/hachimB/student-assistant/internal/transport/http/handler"
	"github.com/hachimB/student-assistant/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	feedbackRepo := repository.NewFeedbackRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)

	messagePublisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	conversationService := appsvc.NewConversationService(sessionRepo, messageRepo, messagePublisher, historyCache)

	answerCache := cache.NewAnswerCache(app.Redis, time.Duration(app.Config.Redis.AnswerTTLSeconds)*time.Second)
	ingestService := appsvc.NewIngestService(
		documentRepo,
		app.Index,
		app.AI,
		chunker.Params{
			ChunkSize:        app.Config.Chunking.ChunkSize,
			Overlap:          app.Config.Chunking.Overlap,
			MinFragmentRatio: app.Config.Chunking.MinFragmentRatio,
			BoundarySlack:    app.Config.Chunking.BoundarySlack,
		},
		app.Config.Ingest.EmbeddingBatchSize,
		app.Config.Ingest.Workers,
		answerCache,
	)

	ret := retriever.New(app.AI, app.Index, retriever.Config{
		TopK:          app.Config.Retrieval.TopK,
		MinScore:      app.Config.Retrieval.MinScore,
		MergeAdjacent: app.Config.Retrieval.MergeAdjacent,
	})
	assembler := prompt.NewAssembler(app.Config.Prompt.MaxContextTokens)
	ragService := appsvc.NewRAGService(ret, assembler, app.AI, answerCache, conversationService)
	feedbackService := appsvc.NewFeedbackService(feedbackRepo)

	authHandler := handler.NewAuthHandler(authService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	documentHandler := handler.NewDocumentHandler(ingestService, app.Config.Ingest.DocsDir)
	askHandler := handler.NewAskHandler(ragService, feedbackService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	authed.POST("/sessions", conversationHandler.CreateSession)
	authed.GET("/sessions", conversationHandler.ListSessions)
	authed.DELETE("/sessions/:id", conversationHandler.DeleteSession)
	authed.GET("/history", conversationHandler.GetHistory)

	authed.POST("/documents", documentHandler.Upload)
	authed.GET("/documents", documentHandler.List)
	authed.DELETE("/documents/:id", documentHandler.Delete)
	authed.POST("/documents/reingest", documentHandler.Reingest)
	authed.GET("/categories", documentHandler.Categories)

	authed.POST("/ask", askHandler.Ask)
	authed.POST("/feedback", askHandler.SubmitFeedback)
	authed.GET("/feedback/:answer_id", askHandler.ListFeedback)

	return router
}
