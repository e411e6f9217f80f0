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
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"job-matching/internal/storage/dbconn"
	pkgerrors "job-matching/pkg/errors"
)

// Schema 建表 DDL（集成测试与本地初始化使用）
//
//go:embed schema.sql
var Schema string

// Handles 读写连接来源，由 dbconn.Manager 实现
type Handles interface {
	Writer() (dbconn.DB, error)
	Reader() (dbconn.DB, error)
}

// PgStore Postgres 实现：查询走读连接，分发事务走写连接
type PgStore struct {
	handles Handles
}

// NewPgStore 创建 PgStore；连接池生命周期由 handles 的所有者管理
func NewPgStore(handles Handles) *PgStore {
	return &PgStore{handles: handles}
}

// EnsureSchema 在写库执行建表 DDL
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	db, err := s.handles.Writer()
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, Schema)
	return classifyPgError("ensure schema", err)
}

// classifyPgError 连接类错误归为 ErrConnectionFailure，其余原样包装
func classifyPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pkgerrors.ErrConnectionFailure) {
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, pkgerrors.ErrConnectionFailure, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const jobColumns = `id, title, category, description, tags, skill_level, budget, deadline, status,
	auto_assign, allow_bidding, allow_parallel_execution, escrow_enabled, is_public, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j           Job
		description *string
		skillLevel  *string
		budget      []byte
		deadline    *time.Time
		status      string
	)
	err := row.Scan(&j.ID, &j.Title, &j.Category, &description, &j.Tags, &skillLevel, &budget, &deadline, &status,
		&j.AutoAssign, &j.AllowBidding, &j.AllowParallelExecution, &j.EscrowEnabled, &j.IsPublic, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description != nil {
		j.Description = *description
	}
	if skillLevel != nil {
		j.SkillLevel = *skillLevel
	}
	if deadline != nil {
		j.Deadline = *deadline
	}
	if len(budget) > 0 {
		if err := json.Unmarshal(budget, &j.Budget); err != nil {
			return nil, fmt.Errorf("job %s budget: %w", j.ID, err)
		}
	}
	j.Status = JobStatus(status)
	return &j, nil
}

func (s *PgStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	job, err := scanJob(db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError("get job", err)
	}
	return job, nil
}

func (s *PgStore) ListOpenJobs(ctx context.Context) ([]*Job, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at, id`, string(JobStatusOpen))
	if err != nil {
		return nil, classifyPgError("list open jobs", err)
	}
	defer rows.Close()
	var list []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, classifyPgError("scan job", err)
		}
		list = append(list, job)
	}
	return list, classifyPgError("list open jobs", rows.Err())
}

// ListEligibleAgents 标签重叠按忽略大小写的互为子串判断，与 MatchedTags 一致
func (s *PgStore) ListEligibleAgents(ctx context.Context, filter AgentFilter) ([]*Agent, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	classifications := filter.Classifications
	if classifications == nil {
		classifications = []string{}
	}
	tags := filter.Tags
	if tags == nil {
		tags = []string{}
	}
	rows, err := db.Query(ctx, `
		SELECT id, name, classification, tags, is_active, auto_accept_jobs, reputation, success_rate, total_jobs_completed
		FROM agents a
		WHERE a.is_active AND a.auto_accept_jobs
		AND (
			a.classification = ANY($1::text[])
			OR EXISTS (
				SELECT 1 FROM unnest(a.tags) AS at(tag), unnest($2::text[]) AS jt(tag)
				WHERE btrim(at.tag) <> '' AND btrim(jt.tag) <> ''
				AND (strpos(lower(btrim(at.tag)), lower(btrim(jt.tag))) > 0
					OR strpos(lower(btrim(jt.tag)), lower(btrim(at.tag))) > 0)
			)
		)
		ORDER BY a.reputation DESC, a.success_rate DESC, a.total_jobs_completed DESC, a.id ASC
	`, classifications, tags)
	if err != nil {
		return nil, classifyPgError("list eligible agents", err)
	}
	defer rows.Close()
	var list []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Classification, &a.Tags, &a.IsActive, &a.AutoAcceptJobs,
			&a.Reputation, &a.SuccessRate, &a.TotalJobsCompleted); err != nil {
			return nil, classifyPgError("scan agent", err)
		}
		list = append(list, &a)
	}
	return list, classifyPgError("list eligible agents", rows.Err())
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(UnitOfWork) error) error {
	db, err := s.handles.Writer()
	if err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return classifyPgError("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgUnit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError("commit", err)
	}
	return nil
}

// pgUnit 绑定到一个写库事务
type pgUnit struct {
	tx pgx.Tx
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (u *pgUnit) InsertDistribution(ctx context.Context, r *DistributionRecord) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO job_distribution_records
			(id, job_id, job_name, match_criteria, total_agents, assigned_count, response_count,
			 assigned_agent_id, assigned_agent_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4::json, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.JobID, r.JobName, string(r.MatchCriteria), r.TotalAgents, r.AssignedCount, r.ResponseCount,
		nullStr(r.AssignedAgentID), nullStr(r.AssignedAgentName), r.CreatedAt, r.UpdatedAt)
	return classifyPgError("insert distribution", err)
}

func (u *pgUnit) InsertAssignment(ctx context.Context, a *DistributionAgent) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO job_distribution_agents (id, distribution_id, agent_id, work_status, assigned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)`,
		a.ID, a.DistributionID, a.AgentID, string(a.WorkStatus), a.AssignedAt)
	return classifyPgError("insert assignment", err)
}

func (u *pgUnit) MarkJobDistributed(ctx context.Context, jobID string) (bool, error) {
	cmd, err := u.tx.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(JobStatusDistributed), jobID, string(JobStatusOpen))
	if err != nil {
		return false, classifyPgError("mark job distributed", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *PgStore) DistributionAggregates(ctx context.Context, since time.Time) (*DistributionAggregates, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	agg := &DistributionAggregates{}
	err = db.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE assigned_count > 0),
			COALESCE(sum(assigned_count), 0),
			count(*) FILTER (WHERE created_at >= $1)
		FROM job_distribution_records`, since).Scan(&agg.Total, &agg.Successful, &agg.AssignedTotal, &agg.Since)
	if err != nil {
		return nil, classifyPgError("distribution aggregates", err)
	}
	return agg, nil
}

const recordColumns = `id, job_id, job_name, match_criteria::text, total_agents, assigned_count, response_count,
	assigned_agent_id, assigned_agent_name, created_at, updated_at`

func scanRecord(row pgx.Row) (*DistributionRecord, error) {
	var (
		r         DistributionRecord
		criteria  string
		agentID   *string
		agentName *string
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.JobName, &criteria, &r.TotalAgents, &r.AssignedCount, &r.ResponseCount,
		&agentID, &agentName, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.MatchCriteria = json.RawMessage(criteria)
	if agentID != nil {
		r.AssignedAgentID = *agentID
	}
	if agentName != nil {
		r.AssignedAgentName = *agentName
	}
	return &r, nil
}

func (s *PgStore) GetDistribution(ctx context.Context, id string) (*DistributionDetail, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	r, err := scanRecord(db.QueryRow(ctx, `SELECT `+recordColumns+` FROM job_distribution_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError("get distribution", err)
	}

	rows, err := db.Query(ctx, `
		SELECT id, distribution_id, agent_id, work_status, assigned_at
		FROM job_distribution_agents WHERE distribution_id = $1 ORDER BY assigned_at, id`, id)
	if err != nil {
		return nil, classifyPgError("list assignments", err)
	}
	defer rows.Close()
	detail := &DistributionDetail{DistributionRecord: *r, Agents: []DistributionAgent{}}
	for rows.Next() {
		var a DistributionAgent
		var status string
		if err := rows.Scan(&a.ID, &a.DistributionID, &a.AgentID, &status, &a.AssignedAt); err != nil {
			return nil, classifyPgError("scan assignment", err)
		}
		a.WorkStatus = WorkStatus(status)
		detail.Agents = append(detail.Agents, a)
	}
	return detail, classifyPgError("list assignments", rows.Err())
}

func (s *PgStore) ListDistributionsByJob(ctx context.Context, jobID string) ([]*DistributionRecord, error) {
	db, err := s.handles.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+recordColumns+`
		FROM job_distribution_records WHERE job_id = $1 ORDER BY created_at DESC, id`, jobID)
	if err != nil {
		return nil, classifyPgError("list distributions", err)
	}
	defer rows.Close()
	list := make([]*DistributionRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, classifyPgError("scan distribution", err)
		}
		list = append(list, r)
	}
	return list, classifyPgError("list distributions", rows.Err())
}

var _ Store = (*PgStore)(nil)
