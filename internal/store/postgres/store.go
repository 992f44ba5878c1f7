// Package postgres 基于 pgx 连接池的群组存储实现。
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.group/internal/config"
	"sudooom.im.group/internal/store"
	"sudooom.im.group/internal/store/migrate"
	"sudooom.im.group/internal/store/postgres/migrations"
)

// uniqueViolation PostgreSQL 唯一约束冲突 SQLSTATE
const uniqueViolation = "23505"

// Store PostgreSQL 存储
type Store struct {
	db        *pgxpool.Pool
	txTimeout time.Duration
	logger    *slog.Logger
}

// Open 连接 PostgreSQL 并执行迁移
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(db, cfg.TxTimeout)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New 使用已有连接池创建存储
func New(db *pgxpool.Pool, txTimeout time.Duration) *Store {
	return &Store{
		db:        db,
		txTimeout: txTimeout,
		logger:    slog.Default(),
	}
}

// Pool 返回底层连接池
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

// Migrate 执行内嵌迁移，每个文件最多执行一次
func (s *Store) Migrate(ctx context.Context) error {
	files, err := migrate.Load(migrations.FS, "")
	if err != nil {
		return err
	}

	createSQL := `CREATE TABLE IF NOT EXISTS ` + migrate.Table + ` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file.Name, err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO `+migrate.Table+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			file.Name,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", file.Name, err)
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			continue
		}

		if _, err := tx.Exec(ctx, file.Up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("exec migration %s: %w", file.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", file.Name, err)
		}
		s.logger.Info("Applied migration", "name", file.Name)
	}
	return nil
}

// WithTransaction 在单个事务中执行 fn
func (s *Store) WithTransaction(ctx context.Context, fn store.TxFunc) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	pgTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// tx 事务内操作
type tx struct {
	tx pgx.Tx
}

// mapError 把驱动错误映射为存储层哨兵错误
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*tx)(nil)
