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
	"time"

	"golang.org/x/sync/errgroup"

	"job-matching/pkg/metrics"
)

const heartbeatSQL = "SELECT 1"

// StartHeartbeat 启动周期保活；HeartbeatInterval<=0 时不启动。只生效一次，Close 时停止。
func (m *Manager) StartHeartbeat() {
	interval := m.config.HeartbeatInterval
	if interval <= 0 {
		return
	}
	m.startOnce.Do(func() {
		if !m.spawn(func() { m.heartbeatLoop(interval) }) {
			return
		}
		m.logger.Info("启动数据库保活机制", "interval", interval)
	})
}

func (m *Manager) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.bgCtx.Done():
			return
		case <-ticker.C:
			m.Heartbeat(m.bgCtx)
		}
	}
}

// Heartbeat 对两个角色各执行一次保活：
// 健康角色执行 SELECT 1，失败则标记为不健康并在后台重连；
// 未连接或不健康的角色直接发起后台重连。
func (m *Manager) Heartbeat(ctx context.Context) {
	var g errgroup.Group
	for _, role := range Roles {
		g.Go(func() error {
			m.beat(ctx, role)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) beat(ctx context.Context, role Role) {
	db, healthy := m.state(role).snapshot()
	if db == nil || !healthy {
		m.triggerReconnect(role)
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	if _, err := db.Exec(pingCtx, heartbeatSQL); err != nil {
		metrics.DBHeartbeatTotal.WithLabelValues(string(role), "error").Inc()
		m.logger.Warn("数据库保活失败，尝试重新连接", "role", role, "error", err)
		m.setHealth(role, false, err)
		m.triggerReconnect(role)
		return
	}
	metrics.DBHeartbeatTotal.WithLabelValues(string(role), "ok").Inc()
	m.setHealth(role, true, nil)
	m.logger.Debug("数据库保活心跳成功", "role", role)
}

// triggerReconnect 每个角色同一时刻至多一个后台重连
func (m *Manager) triggerReconnect(role Role) {
	st := m.state(role)
	if !st.reconnecting.CompareAndSwap(false, true) {
		return
	}
	ok := m.spawn(func() {
		defer st.reconnecting.Store(false)
		if err := m.ConnectWithRetry(m.bgCtx, role, m.config.MaxAttempts, m.config.RetryDelay); err != nil {
			m.logger.Warn("后台重连失败，下个心跳周期继续", "role", role, "error", err)
		}
	})
	if !ok {
		st.reconnecting.Store(false)
	}
}

// spawn 在 Manager 未关闭时启动受 Close 等待的后台 goroutine
func (m *Manager) spawn(fn func()) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}
