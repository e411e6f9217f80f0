// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"
	"time"

	"job-matching/internal/storage/cache"
	"job-matching/internal/storage/dbconn"
	"job-matching/pkg/config"
	"job-matching/pkg/log"
	"job-matching/pkg/secrets"
)

const secretResolveTimeout = 10 * time.Second

// Bootstrap 统一初始化：供 api 与 warmup 复用
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Secrets secrets.Store
	DB      *dbconn.Manager
	Cache   cache.Store
}

// NewBootstrap 根据配置创建 Bootstrap（Logger/Secrets/DB/Cache）；不建立数据库连接
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	store, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
		K8s: secrets.K8sConfig{SecretsPath: cfg.Secrets.K8s.SecretsPath},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
	}
	return newBootstrap(cfg, store, nil)
}

func newBootstrap(cfg *config.Config, store secrets.Store, connector dbconn.Connector) (*Bootstrap, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretResolveTimeout)
	defer cancel()
	writerDSN, readerDSN, err := resolveDSNs(ctx, store, cfg.Database)
	if err != nil {
		return nil, err
	}

	if connector == nil {
		connector = dbconn.PgxConnector{
			MaxConns:       cfg.Database.MaxConns,
			ConnectTimeout: config.ParseDuration(cfg.Database.PingTimeout, 5*time.Second),
		}
	}
	manager := dbconn.NewManager(managerConfig(cfg, writerDSN, readerDSN), connector, logger.With("component", "dbconn"))

	cacheStore, err := cache.NewCache(cfg.Storage.Cache)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	return &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Secrets: store,
		DB:      manager,
		Cache:   cacheStore,
	}, nil
}

// resolveDSNs 解析 secret:// 引用；未配置读库时读写共用写库 DSN
func resolveDSNs(ctx context.Context, store secrets.Store, db config.DatabaseConfig) (string, string, error) {
	writer, err := secrets.Resolve(ctx, store, db.WriterDSN)
	if err != nil {
		return "", "", fmt.Errorf("解析 writer DSN 失败: %w", err)
	}
	if db.ReaderDSN == "" {
		return writer, "", nil
	}
	reader, err := secrets.Resolve(ctx, store, db.ReaderDSN)
	if err != nil {
		return "", "", fmt.Errorf("解析 reader DSN 失败: %w", err)
	}
	return writer, reader, nil
}

func managerConfig(cfg *config.Config, writerDSN, readerDSN string) dbconn.Config {
	mc := dbconn.Config{
		WriterDSN:   writerDSN,
		ReaderDSN:   readerDSN,
		MaxAttempts: cfg.RetryBudget(),
		RetryDelay:  config.ParseDuration(cfg.Database.RetryDelay, 3*time.Second),
		PingTimeout: config.ParseDuration(cfg.Database.PingTimeout, 5*time.Second),
	}
	if cfg.Database.KeepaliveEnabled() {
		mc.HeartbeatInterval = cfg.HeartbeatInterval()
	}
	return mc
}

// Close 释放连接池与缓存
func (b *Bootstrap) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			b.Logger.Warn("关闭缓存失败", "error", err)
		}
	}
}
