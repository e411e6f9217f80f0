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

package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "job-matching/pkg/errors"
)

// MemoryStore 内存实现：用于测试与无数据库的本地运行。
// 事务串行执行，写操作先暂存，fn 成功后一次性提交。
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	agents      map[string]*Agent
	records     map[string]*DistributionRecord
	assignments map[string][]DistributionAgent // distribution id -> rows

	txMu sync.Mutex
	now  func() time.Time

	// failAssignment 非 nil 时在插入关联行前调用，用于故障注入
	failAssignment func(agentID string) error
}

// NewMemoryStore 创建空的内存 Store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[string]*Job),
		agents:      make(map[string]*Agent),
		records:     make(map[string]*DistributionRecord),
		assignments: make(map[string][]DistributionAgent),
		now:         time.Now,
	}
}

// PutJob 写入或覆盖 Job；Status 为空时置为 OPEN
func (s *MemoryStore) PutJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneJob(job)
	if cp.Status == "" {
		cp.Status = JobStatusOpen
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.jobs[cp.ID] = cp
}

// PutAgent 写入或覆盖 Agent
func (s *MemoryStore) PutAgent(agent *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *agent
	cp.Tags = append([]string(nil), agent.Tags...)
	s.agents[cp.ID] = &cp
}

func cloneJob(job *Job) *Job {
	cp := *job
	cp.Tags = append([]string(nil), job.Tags...)
	return &cp
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) ListOpenJobs(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusOpen {
			list = append(list, cloneJob(j))
		}
	}
	sort.Slice(list, func(i, k int) bool {
		if !list[i].CreatedAt.Equal(list[k].CreatedAt) {
			return list[i].CreatedAt.Before(list[k].CreatedAt)
		}
		return list[i].ID < list[k].ID
	})
	return list, nil
}

func (s *MemoryStore) ListEligibleAgents(ctx context.Context, filter AgentFilter) ([]*Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*Agent
	for _, a := range s.agents {
		if filter.Accepts(a) {
			cp := *a
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, k int) bool { return agentOrderBefore(list[i], list[k]) })
	return list, nil
}

// memoryUnit 暂存一次事务内的写入
type memoryUnit struct {
	store       *MemoryStore
	records     []*DistributionRecord
	assignments []DistributionAgent
	distributed map[string]bool
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(UnitOfWork) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	unit := &memoryUnit{store: s, distributed: make(map[string]bool)}
	if err := fn(unit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range unit.records {
		s.records[r.ID] = r
	}
	for _, a := range unit.assignments {
		s.assignments[a.DistributionID] = append(s.assignments[a.DistributionID], a)
	}
	for id := range unit.distributed {
		if j, ok := s.jobs[id]; ok {
			j.Status = JobStatusDistributed
			j.UpdatedAt = now
		}
	}
	return nil
}

func (u *memoryUnit) InsertDistribution(ctx context.Context, record *DistributionRecord) error {
	cp := *record
	cp.MatchCriteria = append([]byte(nil), record.MatchCriteria...)
	u.records = append(u.records, &cp)
	return nil
}

func (u *memoryUnit) InsertAssignment(ctx context.Context, assignment *DistributionAgent) error {
	if u.store.failAssignment != nil {
		if err := u.store.failAssignment(assignment.AgentID); err != nil {
			return err
		}
	}
	found := false
	for _, r := range u.records {
		if r.ID == assignment.DistributionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("distribution %s not created in this transaction: %w", assignment.DistributionID, pkgerrors.ErrInvalidArg)
	}
	u.assignments = append(u.assignments, *assignment)
	return nil
}

func (u *memoryUnit) MarkJobDistributed(ctx context.Context, jobID string) (bool, error) {
	if u.distributed[jobID] {
		return false, nil
	}
	u.store.mu.RLock()
	j, ok := u.store.jobs[jobID]
	open := ok && j.Status == JobStatusOpen
	u.store.mu.RUnlock()
	if !open {
		return false, nil
	}
	u.distributed[jobID] = true
	return true, nil
}

func (s *MemoryStore) DistributionAggregates(ctx context.Context, since time.Time) (*DistributionAggregates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg := &DistributionAggregates{}
	for _, r := range s.records {
		agg.Total++
		agg.AssignedTotal += int64(r.AssignedCount)
		if r.AssignedCount > 0 {
			agg.Successful++
		}
		if !r.CreatedAt.Before(since) {
			agg.Since++
		}
	}
	return agg, nil
}

func (s *MemoryStore) GetDistribution(ctx context.Context, id string) (*DistributionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	detail := &DistributionDetail{DistributionRecord: *r}
	detail.MatchCriteria = append([]byte(nil), r.MatchCriteria...)
	detail.Agents = append([]DistributionAgent{}, s.assignments[id]...)
	return detail, nil
}

func (s *MemoryStore) ListDistributionsByJob(ctx context.Context, jobID string) ([]*DistributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*DistributionRecord, 0)
	for _, r := range s.records {
		if r.JobID == jobID {
			cp := *r
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, k int) bool {
		if !list[i].CreatedAt.Equal(list[k].CreatedAt) {
			return list[i].CreatedAt.After(list[k].CreatedAt)
		}
		return list[i].ID < list[k].ID
	})
	return list, nil
}

var _ Store = (*MemoryStore)(nil)
