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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-matching/internal/api/http/middleware"
	"job-matching/internal/matching"
	"job-matching/internal/storage/dbconn"
	pkgerrors "job-matching/pkg/errors"
	"job-matching/pkg/log"
)

type fakeHealth struct {
	status dbconn.Status
	probes []dbconn.ProbeResult
}

func (f *fakeHealth) Status() dbconn.Status                           { return f.status }
func (f *fakeHealth) Probe(ctx context.Context) []dbconn.ProbeResult { return f.probes }

func newTestServer(t *testing.T, rps int) (*server.Hertz, *matching.MemoryStore, *fakeHealth) {
	t.Helper()
	store := matching.NewMemoryStore()
	store.PutJob(&matching.Job{ID: "job-web", Title: "Landing page", Category: "web-development", Tags: []string{"HTML", "CSS"}})
	store.PutJob(&matching.Job{ID: "job-closed", Title: "Old", Category: "web-development", Status: matching.JobStatusCompleted})
	store.PutAgent(&matching.Agent{ID: "agent-1", Name: "Coder", Classification: "programming-assistant",
		Tags: []string{"html"}, IsActive: true, AutoAcceptJobs: true})

	engine := matching.NewEngine(store, store, store, matching.EngineConfig{}, log.Discard())
	stats := matching.NewStatsService(store, nil, 0, log.Discard())
	health := &fakeHealth{
		status: dbconn.Status{WriterHealthy: true, ReaderHealthy: true, OverallHealthy: true},
		probes: []dbconn.ProbeResult{{Role: dbconn.RoleWriter, OK: true}, {Role: dbconn.RoleReader, OK: true}},
	}

	h := NewHandler(engine, stats)
	h.SetReporter(matching.NewReporter(store, store, 5))
	h.SetDistributionReader(store)
	h.SetHealthChecker(health)
	r := NewRouter(h, middleware.NewMiddleware(nil))
	r.SetRateLimit(rps)
	return r.Build(":0"), store, health
}

func doJSON(s *server.Hertz, method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(s.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func decode(t *testing.T, w *ut.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Result().Body(), v), string(w.Result().Body()))
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	w := doJSON(s, "GET", "/api/health", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"status":"ok"`)
}

func TestDistribute_Success(t *testing.T) {
	s, store, _ := newTestServer(t, 0)
	w := doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"job-web"}`))
	require.Equal(t, 200, w.Result().StatusCode(), string(w.Result().Body()))

	var out matching.DistributionOutcome
	decode(t, w, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "job-web", out.JobID)
	assert.Equal(t, 1, out.AgentsCount)
	assert.Equal(t, []matching.AgentRef{{ID: "agent-1", Name: "Coder"}}, out.Agents)

	w = doJSON(s, "GET", "/api/matching/distributions/"+out.DistributionID, nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var detail matching.DistributionDetail
	decode(t, w, &detail)
	assert.Equal(t, out.DistributionID, detail.ID)
	assert.Len(t, detail.Agents, 1)
	assert.JSONEq(t, `{"category":"web-development","tags":["HTML","CSS"],"skillLevel":""}`, string(detail.MatchCriteria))

	w = doJSON(s, "GET", "/api/jobs/job-web/distributions", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var list struct {
		JobID         string                        `json:"jobId"`
		Distributions []matching.DistributionRecord `json:"distributions"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Distributions, 1)

	job, _ := store.GetJob(context.Background(), "job-web")
	assert.Equal(t, matching.JobStatusDistributed, job.Status)
}

func TestDistribute_ErrorMapping(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing job id", `{}`, 400, pkgerrors.KindInvalidArg},
		{"malformed body", `{"jobId":`, 400, pkgerrors.KindInvalidArg},
		{"unknown job", `{"jobId":"nope"}`, 404, pkgerrors.KindNotFound},
		{"job not open", `{"jobId":"job-closed"}`, 409, pkgerrors.KindInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(s, "POST", "/api/matching/distribute", []byte(tt.body))
			assert.Equal(t, tt.status, w.Result().StatusCode())
			var body map[string]string
			decode(t, w, &body)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

type stubDistributor struct{ err error }

func (s stubDistributor) Distribute(ctx context.Context, jobID string) (*matching.DistributionOutcome, error) {
	return nil, s.err
}

func TestWriteError_ConflictAndConnectionFailure(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{pkgerrors.Wrap(pkgerrors.ErrTransactionConflict, "job j"), 409, pkgerrors.KindTransactionConflict, "job j: transaction conflict"},
		{pkgerrors.Wrap(pkgerrors.ErrConnectionFailure, "writer"), 503, pkgerrors.KindConnectionFailure, "database unavailable"},
		{errors.New("boom"), 500, pkgerrors.KindInternal, "internal error"},
		{pkgerrors.Wrap(context.Canceled, "job j"), 499, pkgerrors.KindCanceled, "job j: context canceled"},
	}
	for _, tt := range tests {
		h := NewHandler(stubDistributor{err: tt.err}, nil)
		s := NewRouter(h, middleware.NewMiddleware(nil)).Build(":0")
		w := doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"j"}`))
		assert.Equal(t, tt.status, w.Result().StatusCode())
		var body map[string]string
		decode(t, w, &body)
		assert.Equal(t, tt.code, body["code"])
		assert.Equal(t, tt.msg, body["error"])
	}
}

func TestGetStatsAndReport(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"job-web"}`))

	w := doJSON(s, "GET", "/api/matching/stats", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var stats matching.Stats
	decode(t, w, &stats)
	assert.Equal(t, int64(1), stats.TotalDistributions)
	assert.Equal(t, 100.0, stats.SuccessRate)

	w = doJSON(s, "GET", "/api/matching/report", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	var report matching.Report
	decode(t, w, &report)
	assert.Equal(t, 0, report.Summary.TotalJobs, "distributed and completed jobs are not OPEN")
}

func TestGetDistribution_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	w := doJSON(s, "GET", "/api/matching/distributions/missing", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestDatabaseHealth(t *testing.T) {
	s, _, health := newTestServer(t, 0)
	w := doJSON(s, "GET", "/api/health/database", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"status":"healthy"`)

	health.probes[1] = dbconn.ProbeResult{Role: dbconn.RoleReader, Error: "connection refused"}
	health.status = dbconn.Status{WriterHealthy: true}
	w = doJSON(s, "GET", "/api/health/database", nil)
	assert.Equal(t, 503, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "connection refused")

	w = doJSON(s, "GET", "/api/health/database/connections", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	var st dbconn.Status
	decode(t, w, &st)
	assert.True(t, st.WriterHealthy)
	assert.False(t, st.ReaderHealthy)
	assert.False(t, st.OverallHealthy)
}

func TestDistribute_RateLimited(t *testing.T) {
	s, _, _ := newTestServer(t, 1)
	first := doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"nope"}`))
	assert.Equal(t, 404, first.Result().StatusCode())
	second := doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"nope"}`))
	assert.Equal(t, 429, second.Result().StatusCode())

	// 其他接口不受限
	w := doJSON(s, "GET", "/api/matching/stats", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
}

func TestMissingDependenciesAreUnavailable(t *testing.T) {
	s := NewRouter(NewHandler(nil, nil), middleware.NewMiddleware(nil)).Build(":0")
	for _, path := range []string{"/api/matching/stats", "/api/matching/report", "/api/health/database", "/api/matching/distributions/x"} {
		w := doJSON(s, "GET", path, nil)
		assert.Equal(t, 503, w.Result().StatusCode(), path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	doJSON(s, "POST", "/api/matching/distribute", []byte(`{"jobId":"job-web"}`))
	w := doJSON(s, "GET", "/metrics", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "matching_distribution_total")
}
