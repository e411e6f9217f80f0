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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("MATCHING_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// apiClient 匹配服务 HTTP API 客户端
type apiClient struct {
	http *resty.Client
}

func newClient(baseURL string) *apiClient {
	return &apiClient{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")}
}

// apiError 服务端错误体 {"error","code"}
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.Status, e.Code, e.Message)
}

func (c *apiClient) do(method, path string, body interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	apiErr := &apiError{}
	req := c.http.R().SetResult(&out).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		// 503 等错误响应也可能带有结构化内容（如健康检查的探测结果）
		if len(resp.Body()) > 0 {
			_ = json.Unmarshal(resp.Body(), &out)
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.String()
		}
		return out, apiErr
	}
	return out, nil
}

func (c *apiClient) distribute(jobID string) (map[string]interface{}, error) {
	return c.do(http.MethodPost, "/api/matching/distribute", map[string]string{"jobId": jobID})
}

func (c *apiClient) stats() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/matching/stats", nil)
}

func (c *apiClient) report() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/matching/report", nil)
}

// databaseHealth 503 时仍返回探测结果
func (c *apiClient) databaseHealth() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/health/database", nil)
}

func (c *apiClient) distribution(id string) (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/matching/distributions/"+id, nil)
}

func (c *apiClient) jobDistributions(jobID string) (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/jobs/"+jobID+"/distributions", nil)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
