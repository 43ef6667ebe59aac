// Package app собирает зависимости сервиса и CLI из конфигурации.
package app

import (
	"context"
	"fmt"
	"time"

	"virkum-respond/internal/config"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"
	"virkum-respond/pkg/database"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewDispatcher создает диспетчер с клиентами генерации и отправки.
// Без учетных данных SMTP отправитель не создается и автоотправка отклоняется при проверке прогона.
func NewDispatcher(cfg *config.Config, logger *zap.Logger) (*worker.Dispatcher, *worker.Metrics, error) {
	ai, err := service.NewAIClient(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create ai client: %w", err)
	}
	generation := service.NewGenerationClient(ai, service.GenerationClientConfig{
		Model:       cfg.AIModel,
		GraderModel: cfg.GraderModel(),
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
	}, logger)
	generator := worker.NewRetryingGenerator(generation, cfg.GenerateMaxAttempts, cfg.GenerateRetryBaseDelay, cfg.GenerateTimeout, logger)
	// С повторами GENERATE_TIMEOUT ограничивает каждую попытку внутри RetryingGenerator
	generateTimeout := cfg.GenerateTimeout
	if cfg.GenerateMaxAttempts > 1 {
		generateTimeout = 0
	}

	var sender worker.Sender
	if cfg.SMTPConfigured() {
		mailer := service.NewSMTPMailer(service.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.FromEmail,
			Timeout:   cfg.SMTPTimeout,
		}, logger)
		sender = service.NewSendClient(mailer, logger)
	} else {
		logger.Warn("SMTP credentials are not set, auto-send is disabled")
	}

	metrics := worker.NewMetrics()
	dispatcher := worker.NewDispatcher(generator, sender, worker.DispatcherConfig{
		GenerateTimeout: generateTimeout,
		SendTimeout:     cfg.SendTimeout,
	}, metrics, logger)
	return dispatcher, metrics, nil
}

// ConnectDatabase подключается к PostgreSQL с повторными попытками.
func ConnectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.Database, error) {
	return database.Connect(ctx, database.Config{
		DSN:             cfg.GetDSN(),
		MaxConns:        int32(cfg.DBMaxConns),
		MaxConnIdleTime: cfg.DBIdleTimeout,
		ConnectAttempts: cfg.DBConnectAttempts,
		RetryDelay:      cfg.DBRetryDelay,
	}, logger.Named("database"))
}

// NewRedisClient создает клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// ConnectRabbitMQ подключается к RabbitMQ, делая до maxRetries попыток.
func ConnectRabbitMQ(ctx context.Context, url string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", i+1))
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxRetries, err)
}
