package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hachimB/student-assistant/internal/ai"
	"github.com/hachimB/student-assistant/internal/config"
	"github.com/hachimB/student-assistant/internal/index"
	"github.com/hachimB/student-assistant/internal/model"
	mysqlClient "github.com/hachimB/student-assistant/internal/platform/mysql"
	rabbitmqClient "github.com/hachimB/student-assistant/internal/platform/rabbitmq"
	redisClient "github.com/hachimB/student-assistant/internal/platform/redis"
	"github.com/hachimB/student-assistant/internal/repository"
	"github.com/hachimB/student-assistant/internal/worker"
)

type App struct {
	Config        *config.Config
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	MessageWorker *worker.MessagePersistWorker
	Index         index.Store
	AI            *ai.Client

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Document{},
		&model.Chunk{},
		&model.Embedding{},
		&model.Feedback{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	metric, err := index.ParseMetric(cfg.Retrieval.Metric)
	if err != nil {
		return nil, fmt.Errorf("invalid retrieval metric: %w", err)
	}
	store, err := index.NewMySQLStore(mysqlDB, metric, cfg.Retrieval.Dimension)
	if err != nil {
		return nil, fmt.Errorf("load vector index failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	messageRepo := repository.NewMessageRepository(mysqlDB)
	messageWorker := worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue)
	if err := messageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start message worker failed: %w", err)
	}

	aiClient := ai.NewClient(ai.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxRetries:     cfg.LLM.MaxRetries,
		RetryBackoff:   time.Duration(cfg.LLM.RetryBackoffMS) * time.Millisecond,
	})

	return &App{
		Config:        cfg,
		MySQL:         mysqlDB,
		Redis:         redisCli,
		MQConn:        mqConn,
		MessageWorker: messageWorker,
		Index:         store,
		AI:            aiClient,
		StartedAt:     time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
