package database

import (
	"context"

	"gorm.io/gorm"
)

// Prober 存储层存活检查
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc 函数适配器
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

type gormProber struct {
	db *gorm.DB
}

// GormProber 通过 SELECT 1 检查数据库连接
func GormProber(db *gorm.DB) Prober {
	return &gormProber{db: db}
}

func (p *gormProber) Probe(ctx context.Context) error {
	return p.db.WithContext(ctx).Exec("SELECT 1").Error
}
