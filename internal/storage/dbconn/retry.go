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

package dbconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	pkgerrors "job-matching/pkg/errors"
	"job-matching/pkg/metrics"
	"job-matching/pkg/tracing"
)

// linearBackOff 第 n 次失败后等待 n*base
type linearBackOff struct {
	base time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// ConnectWithRetry 为 role 建立连接，最多尝试 maxAttempts 次，间隔线性递增（baseDelay, 2*baseDelay, ...）。
// 中间失败只记日志；最后一次失败以 ErrConnectionFailure 返回。DSN 无效时不重试。
func (m *Manager) ConnectWithRetry(ctx context.Context, role Role, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	ctx, span := tracing.StartConnectSpan(ctx, string(role))

	attempt := 0
	op := func() error {
		attempt++
		err := m.establish(ctx, role)
		if err != nil {
			metrics.DBConnectAttemptsTotal.WithLabelValues(string(role), "error").Inc()
			m.setHealth(role, false, err)
			if errors.Is(err, pkgerrors.ErrInvalidArg) {
				return backoff.Permanent(err)
			}
			if attempt < maxAttempts {
				m.logger.Warn("数据库连接尝试失败，稍后重试",
					"role", role, "attempt", attempt, "max_attempts", maxAttempts,
					"retry_in", time.Duration(attempt)*baseDelay, "error", err)
			}
			return err
		}
		metrics.DBConnectAttemptsTotal.WithLabelValues(string(role), "ok").Inc()
		m.setHealth(role, true, nil)
		m.logger.Info("数据库连接成功", "role", role, "attempt", attempt, "max_attempts", maxAttempts)
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: baseDelay}, uint64(maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if err != nil {
		m.logger.Error("数据库连接失败",
			"role", role, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		err = fmt.Errorf("%s connect failed after %d/%d attempts: %w: %w",
			role, attempt, maxAttempts, pkgerrors.ErrConnectionFailure, err)
	}
	tracing.EndSpan(span, err)
	return err
}

// establish 未建立连接池时创建；已存在时 Ping 验证（pgxpool 会自行替换失效连接）
func (m *Manager) establish(ctx context.Context, role Role) error {
	st := m.state(role)
	if db, _ := st.snapshot(); db != nil {
		return db.Ping(ctx)
	}
	db, err := m.connector.Connect(ctx, role, m.dsn(role))
	if err != nil {
		return err
	}
	st.mu.Lock()
	if st.db != nil {
		// 并发建立时保留先到者
		st.mu.Unlock()
		db.Close()
		return nil
	}
	st.db = db
	st.mu.Unlock()
	return nil
}
