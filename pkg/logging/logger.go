// Package logging はzapベースの構造化ロガーを提供します。
package logging

import (
	"go.uber.org/zap"
)

// Config ロガー設定
type Config struct {
	Level       string
	Development bool
	Service     string
}

// New は設定からロガーを生成します。開発時はconsole形式、それ以外はJSON形式で出力します。
func New(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// MustNew はNewと同じですが、失敗時はzapのProductionロガーにフォールバックします。
func MustNew(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// OrNop はnilのときに何も出力しないロガーを返します。
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
