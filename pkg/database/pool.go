package database

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// pool caches one connection per process. Serverless invocations and the
// server binary share it; a failed health check reconnects.
type pool struct {
	mu         sync.Mutex
	db         DatabaseInterface
	cfg        DatabaseConfig
	createdAt  time.Time
	lastUsed   time.Time
	reconnects int
}

var shared pool

// PoolStats 连接缓存状态（调试端点使用）
type PoolStats struct {
	Connected   bool       `json:"connected"`
	Local       bool       `json:"local"`
	HasPostgres bool       `json:"has_postgres"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	Reconnects  int        `json:"reconnects"`
}

// GetDatabase 获取数据库连接（单例模式）
func GetDatabase(ctx context.Context, cfg DatabaseConfig) (DatabaseInterface, error) {
	return shared.get(ctx, cfg)
}

// CloseDatabase 关闭缓存的连接并清零统计
func CloseDatabase() error {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	shared.reconnects = 0
	return shared.closeLocked()
}

// GetConnectionStats 获取连接统计信息
func GetConnectionStats() PoolStats {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	stats := PoolStats{
		Connected:   shared.db != nil,
		Local:       shared.cfg.UseLocalDB,
		HasPostgres: shared.cfg.PostgresDSN != "",
		Reconnects:  shared.reconnects,
	}
	if shared.db != nil {
		created, used := shared.createdAt, shared.lastUsed
		stats.CreatedAt = &created
		stats.LastUsed = &used
	}
	return stats
}

func (p *pool) get(ctx context.Context, cfg DatabaseConfig) (DatabaseInterface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil && !p.staleLocked(ctx, cfg) {
		p.lastUsed = time.Now()
		return p.db, nil
	}

	if p.db != nil {
		p.reconnects++
		if err := p.closeLocked(); err != nil {
			log.Warn().Err(err).Msg("closing stale database connection")
		}
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p.db, p.cfg, p.createdAt, p.lastUsed = db, cfg, now, now
	log.Info().Bool("local", cfg.UseLocalDB).Int("reconnects", p.reconnects).Msg("database connection created")
	return db, nil
}

// staleLocked 判断是否需要重新创建连接
func (p *pool) staleLocked(ctx context.Context, cfg DatabaseConfig) bool {
	if p.cfg != cfg {
		log.Info().Msg("database configuration changed, recreating connection")
		return true
	}
	// the in-memory store is never recreated; its data would be lost
	if cfg.UseLocalDB {
		return false
	}
	if err := p.db.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("database health check failed, recreating connection")
		return true
	}
	return false
}

func (p *pool) closeLocked() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
