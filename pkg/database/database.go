// Package database создает пул pgx с повторными попытками подключения.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config настройки подключения
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnIdleTime time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
	PingTimeout     time.Duration
}

// Database пул подключений PostgreSQL
type Database struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect создает пул и проверяет соединение, повторяя попытки с паузой RetryDelay.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	attempts := max(cfg.ConnectAttempts, 1)
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
				return &Database{Pool: pool, logger: logger}, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("Database connection failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", attempts),
			zap.Duration("retryDelay", cfg.RetryDelay),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

// Close закрывает пул
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection pool closed")
	}
}

// ExecuteInTransaction выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
func ExecuteInTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
