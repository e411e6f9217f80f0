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
	"fmt"
	"io"
	"os"
)

const version = "job-matching cli 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], newClient(apiBaseURL()), os.Stdout, os.Stderr))
}

func run(args []string, client *apiClient, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd, rest := args[0], args[1:]
	var (
		out map[string]interface{}
		err error
	)
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "distribute":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: matching distribute <job_id>")
			return 1
		}
		out, err = client.distribute(rest[0])
	case "stats":
		out, err = client.stats()
	case "report":
		out, err = client.report()
	case "health":
		out, err = client.databaseHealth()
	case "distribution":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: matching distribution <distribution_id>")
			return 1
		}
		out, err = client.distribution(rest[0])
	case "history":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: matching history <job_id>")
			return 1
		}
		out, err = client.jobDistributions(rest[0])
	default:
		printUsage(stderr)
		return 1
	}

	if out != nil {
		fmt.Fprintln(stdout, prettyJSON(out))
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s 失败: %v\n", cmd, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: matching <command> [args]")
	fmt.Fprintln(w, "  version                 - 显示版本")
	fmt.Fprintln(w, "  distribute <job_id>     - 分发 Job 给匹配的 Agent")
	fmt.Fprintln(w, "  stats                   - 分发统计")
	fmt.Fprintln(w, "  report                  - 所有 OPEN Job 的匹配报告")
	fmt.Fprintln(w, "  health                  - 数据库读写连接健康检查")
	fmt.Fprintln(w, "  distribution <id>       - 分发记录详情")
	fmt.Fprintln(w, "  history <job_id>        - Job 的全部分发记录")
	fmt.Fprintln(w, "环境变量 MATCHING_API_URL 指定服务地址（默认 http://localhost:8080）")
}
