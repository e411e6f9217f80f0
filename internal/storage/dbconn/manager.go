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
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "job-matching/pkg/errors"
	"job-matching/pkg/log"
	"job-matching/pkg/metrics"
)

// Config Manager 配置
type Config struct {
	WriterDSN         string
	ReaderDSN         string        // 为空时读路径与写路径使用同一 DSN
	MaxAttempts       int           // 每轮连接的尝试次数（含首次）
	RetryDelay        time.Duration // 线性退避基准
	HeartbeatInterval time.Duration // <=0 不启动保活
	PingTimeout       time.Duration
}

// roleState 单个角色的连接句柄与健康状态
type roleState struct {
	mu        sync.RWMutex
	db        DB
	healthy   bool
	lastErr   string
	lastCheck time.Time

	reconnecting atomic.Bool
}

func (s *roleState) snapshot() (DB, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db, s.healthy
}

// Manager 持有写、读两个连接池。任一角色不可用时进程继续运行（降级），由心跳负责恢复。
type Manager struct {
	config    Config
	connector Connector
	logger    *log.Logger

	writer *roleState
	reader *roleState

	// 后台心跳与重连的生命周期
	bgCtx     context.Context
	bgCancel  context.CancelFunc
	lifecycle sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewManager 创建 Manager；不建立连接，调用 Open 才会连接
func NewManager(config Config, connector Connector, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	if connector == nil {
		connector = PgxConnector{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = 5 * time.Second
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:    config,
		connector: connector,
		logger:    logger,
		writer:    &roleState{},
		reader:    &roleState{},
		bgCtx:     bgCtx,
		bgCancel:  cancel,
	}
	logger.Info("数据库配置",
		"writer", MaskDSN(config.WriterDSN),
		"reader", MaskDSN(m.dsn(RoleReader)),
		"max_attempts", config.MaxAttempts,
		"retry_delay", config.RetryDelay,
		"heartbeat_interval", config.HeartbeatInterval)
	return m
}

func (m *Manager) state(role Role) *roleState {
	if role == RoleReader {
		return m.reader
	}
	return m.writer
}

func (m *Manager) dsn(role Role) string {
	if role == RoleReader && m.config.ReaderDSN != "" {
		return m.config.ReaderDSN
	}
	return m.config.WriterDSN
}

func (m *Manager) setHealth(role Role, healthy bool, err error) {
	st := m.state(role)
	st.mu.Lock()
	st.healthy = healthy
	st.lastCheck = time.Now()
	if err != nil {
		st.lastErr = err.Error()
	} else {
		st.lastErr = ""
	}
	st.mu.Unlock()

	v := 0.0
	if healthy {
		v = 1
	}
	metrics.DBConnectionHealthy.WithLabelValues(string(role)).Set(v)
}

// Open 并行为写、读两个角色建立连接（各自带重试）。
// 返回所有失败角色的合并错误；失败不会阻止 Manager 继续使用，未连接的角色由心跳重试。
func (m *Manager) Open(ctx context.Context) error {
	errs := make([]error, len(Roles))
	var g errgroup.Group
	for i, role := range Roles {
		g.Go(func() error {
			errs[i] = m.ConnectWithRetry(ctx, role, m.config.MaxAttempts, m.config.RetryDelay)
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Error("数据库连接失败，服务以降级模式运行", "error", err)
		return err
	}
	m.logger.Info("数据库连接已建立", "writer", MaskDSN(m.dsn(RoleWriter)), "reader", MaskDSN(m.dsn(RoleReader)))
	return nil
}

// Writer 返回写连接；从未建立过时返回 ErrConnectionFailure
func (m *Manager) Writer() (DB, error) {
	return m.acquire(RoleWriter)
}

// Reader 返回读连接；从未建立过时返回 ErrConnectionFailure
func (m *Manager) Reader() (DB, error) {
	return m.acquire(RoleReader)
}

func (m *Manager) acquire(role Role) (DB, error) {
	db, _ := m.state(role).snapshot()
	if db == nil {
		return nil, fmt.Errorf("%s connection unavailable: %w", role, pkgerrors.ErrConnectionFailure)
	}
	return db, nil
}

// RoleStatus 单个角色的健康详情
type RoleStatus struct {
	Healthy       bool      `json:"healthy"`
	Connected     bool      `json:"connected"`
	LastError     string    `json:"lastError,omitempty"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// Status 连接健康快照；OverallHealthy 当且仅当两个角色都健康
type Status struct {
	WriterHealthy  bool       `json:"writerHealthy"`
	ReaderHealthy  bool       `json:"readerHealthy"`
	OverallHealthy bool       `json:"overallHealthy"`
	SharedDSN      bool       `json:"sharedDsn"`
	Writer         RoleStatus `json:"writer"`
	Reader         RoleStatus `json:"reader"`
}

// Status 返回最近一次连接/心跳记录的健康状态，不访问数据库
func (m *Manager) Status() Status {
	w := m.roleStatus(RoleWriter)
	r := m.roleStatus(RoleReader)
	return Status{
		WriterHealthy:  w.Healthy,
		ReaderHealthy:  r.Healthy,
		OverallHealthy: w.Healthy && r.Healthy,
		SharedDSN:      m.config.ReaderDSN == "" || m.config.ReaderDSN == m.config.WriterDSN,
		Writer:         w,
		Reader:         r,
	}
}

func (m *Manager) roleStatus(role Role) RoleStatus {
	st := m.state(role)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return RoleStatus{
		Healthy:       st.healthy,
		Connected:     st.db != nil,
		LastError:     st.lastErr,
		LastCheckedAt: st.lastCheck,
	}
}

// ProbeResult 一次实时探测的结果
type ProbeResult struct {
	Role      Role   `json:"role"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Probe 对两个角色并行执行一次 SELECT 1，不修改记录的健康状态
func (m *Manager) Probe(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, len(Roles))
	var g errgroup.Group
	for i, role := range Roles {
		g.Go(func() error {
			results[i] = m.probe(ctx, role)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) probe(ctx context.Context, role Role) ProbeResult {
	res := ProbeResult{Role: role}
	db, err := m.acquire(role)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	start := time.Now()
	_, err = db.Exec(ctx, heartbeatSQL)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

// Close 停止心跳与后台重连，等待其退出后关闭两个连接池。可重复调用。
func (m *Manager) Close() {
	m.lifecycle.Lock()
	if m.closed {
		m.lifecycle.Unlock()
		return
	}
	m.closed = true
	m.bgCancel()
	m.lifecycle.Unlock()

	m.wg.Wait()

	for _, role := range Roles {
		st := m.state(role)
		st.mu.Lock()
		db := st.db
		st.db = nil
		st.healthy = false
		st.mu.Unlock()
		if db != nil {
			db.Close()
		}
		metrics.DBConnectionHealthy.WithLabelValues(string(role)).Set(0)
	}
	m.logger.Info("数据库连接已关闭")
}
