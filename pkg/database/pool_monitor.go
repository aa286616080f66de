package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"payflow/pkg/metrics"

	"go.uber.org/zap"
)

// StatsSource 连接池统计来源，*sql.DB 满足该接口
type StatsSource interface {
	Stats() sql.DBStats
}

// PoolMonitorConfig 连接池监控配置
type PoolMonitorConfig struct {
	MonitorInterval time.Duration
	AlertThreshold  int           // 打开连接数超过该值时告警
	MaxWaitDuration time.Duration // 两次采样间等待时长增量超过该值时告警
}

// DefaultPoolMonitorConfig 与 configureConnectionPool 的上限保持一致
func DefaultPoolMonitorConfig() PoolMonitorConfig {
	return PoolMonitorConfig{
		MonitorInterval: 15 * time.Second,
		AlertThreshold:  maxOpenConns * 8 / 10,
		MaxWaitDuration: 5 * time.Second,
	}
}

// PoolMonitor 连接池监控器
type PoolMonitor struct {
	src     StatsSource
	metrics *metrics.MetricsCollector
	log     *zap.Logger
	config  PoolMonitorConfig

	mu       sync.Mutex
	last     sql.DBStats
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoolMonitor 创建连接池监控器，调用 Start 后开始采样
func NewPoolMonitor(src StatsSource, collector *metrics.MetricsCollector, log *zap.Logger, config PoolMonitorConfig) *PoolMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolMonitor{
		src:     src,
		metrics: collector,
		log:     log,
		config:  config,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 开始监控
func (pm *PoolMonitor) Start() {
	go func() {
		defer close(pm.done)

		ticker := time.NewTicker(pm.config.MonitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				pm.collect()
			case <-pm.stopCh:
				return
			}
		}
	}()
}

// Stop 停止监控，可重复调用
func (pm *PoolMonitor) Stop(ctx context.Context) error {
	pm.stopOnce.Do(func() { close(pm.stopCh) })
	select {
	case <-pm.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collect 采样一次并更新指标
func (pm *PoolMonitor) collect() sql.DBStats {
	stats := pm.src.Stats()

	pm.mu.Lock()
	prev := pm.last
	pm.last = stats
	pm.mu.Unlock()

	pm.metrics.UpdateDBConnections(stats.OpenConnections)

	if pm.config.AlertThreshold > 0 && stats.OpenConnections > pm.config.AlertThreshold {
		pm.metrics.RecordDBError("pool_alert", "high_connections")
		pm.log.Warn("DB pool connections high",
			zap.Int("open", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("threshold", pm.config.AlertThreshold),
		)
	}

	if waited := stats.WaitDuration - prev.WaitDuration; pm.config.MaxWaitDuration > 0 && waited > pm.config.MaxWaitDuration {
		pm.metrics.RecordDBError("pool_alert", "high_wait_time")
		pm.log.Warn("DB pool wait time high",
			zap.Duration("waited", waited),
			zap.Int64("wait_count", stats.WaitCount-prev.WaitCount),
		)
	}

	return stats
}
