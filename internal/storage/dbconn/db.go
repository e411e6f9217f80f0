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

// Package dbconn 管理读写分离的两个数据库连接池：启动时带重试建立，运行期心跳保活并在失败时后台重连
package dbconn

//go:generate mockgen -destination=mocks/mock_dbconn.go -package=mocks job-matching/internal/storage/dbconn DB,Connector

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "job-matching/pkg/errors"
)

// Role 逻辑数据库角色
type Role string

const (
	RoleWriter Role = "writer" // 写主库
	RoleReader Role = "reader" // 读副本
)

// Roles 固定顺序，心跳与状态按此遍历
var Roles = []Role{RoleWriter, RoleReader}

// DB 读写句柄的最小接口，*pgxpool.Pool 满足
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Connector 为某一角色建立连接池
type Connector interface {
	Connect(ctx context.Context, role Role, dsn string) (DB, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// PgxConnector 基于 pgxpool 的 Connector
type PgxConnector struct {
	MaxConns       int32         // <=0 使用 pgxpool 默认
	ConnectTimeout time.Duration // <=0 使用 DSN 中的 connect_timeout
}

// Connect 解析 DSN、创建连接池并 Ping 一次；DSN 无效时返回 ErrInvalidArg（不应重试）
func (c PgxConnector) Connect(ctx context.Context, role Role, dsn string) (DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn 为空: %w", role, pkgerrors.ErrInvalidArg)
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s dsn 无效: %w: %v", role, pkgerrors.ErrInvalidArg, err)
	}
	if c.MaxConns > 0 {
		config.MaxConns = c.MaxConns
	}
	if c.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	config.ConnConfig.RuntimeParams["application_name"] = "job-matching-" + string(role)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var credentialsPattern = regexp.MustCompile(`://[^:/@]+:[^@]+@`)

// MaskDSN 隐藏 DSN 中的用户名与密码，仅用于日志
func MaskDSN(dsn string) string {
	if dsn == "" {
		return "undefined"
	}
	return credentialsPattern.ReplaceAllString(dsn, "://***:***@")
}
