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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// RuntimeConfig 运行时环境配置
type RuntimeConfig struct {
	Profile    string `mapstructure:"profile"`    // dev | prod
	Serverless bool   `mapstructure:"serverless"` // 短生命周期执行环境（如 Lambda），心跳间隔缩短
}

// IsProduction profile 为 prod/production 时为 true
func (r RuntimeConfig) IsProduction() bool {
	switch strings.ToLower(r.Profile) {
	case "prod", "production":
		return true
	}
	return false
}

// IsServerless 配置显式开启或检测到 Lambda 环境变量时为 true
func (r RuntimeConfig) IsServerless() bool {
	return r.Serverless || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// DatabaseConfig 读写分离数据库配置；reader_dsn 为空时回落到 writer_dsn
type DatabaseConfig struct {
	WriterDSN         string `mapstructure:"writer_dsn"`
	ReaderDSN         string `mapstructure:"reader_dsn"`
	MaxAttempts       int    `mapstructure:"max_attempts"`       // 生产环境连接重试次数（含首次），<=0 默认 5；非生产固定 2
	RetryDelay        string `mapstructure:"retry_delay"`        // 重试基准间隔，如 "3s"
	HeartbeatInterval string `mapstructure:"heartbeat_interval"` // 空则长驻进程 5m、serverless 30s
	Keepalive         *bool  `mapstructure:"keepalive"`          // 未配置时默认开启
	PingTimeout       string `mapstructure:"ping_timeout"`       // 单次心跳查询超时
	MaxConns          int32  `mapstructure:"max_conns"`          // 每个连接池最大连接数，<=0 使用 pgxpool 默认
}

// MatchingConfig 匹配与分发配置
type MatchingConfig struct {
	DistributeLimit   int    `mapstructure:"distribute_limit"`   // 分发候选上限，<=0 默认 5
	ReportLimit       int    `mapstructure:"report_limit"`       // 匹配报告每个 Job 的候选上限，<=0 默认 5
	DistributeTimeout string `mapstructure:"distribute_timeout"` // 单次分发超时，如 "30s"
	StatsTTL          string `mapstructure:"stats_ttl"`          // 统计缓存时长，如 "30s"
}

// APIConfig API 服务配置
type APIConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps"` // 分发接口限流，<=0 不限流
}

// StorageConfig 存储配置
type StorageConfig struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// SecretsConfig 密钥来源配置；DSN 以 secret:// 开头时从此处解析
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault | k8s
	Vault    VaultConfig `mapstructure:"vault"`
	K8s      K8sConfig   `mapstructure:"k8s"`
}

// K8sConfig 挂载卷形式的 Kubernetes Secret
type K8sConfig struct {
	SecretsPath string `mapstructure:"secrets_path"`
}

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// 环境变量绑定；第一个为规范名，其余兼容旧部署
var envBindings = map[string][]string{
	"database.writer_dsn": {"DATABASE_WRITER_DSN", "DATABASE_URL"},
	"database.reader_dsn": {"DATABASE_READER_DSN", "DATABASE_URL_READER"},
	"runtime.profile":     {"APP_ENV", "NODE_ENV"},
	"runtime.serverless":  {"RUNTIME_SERVERLESS"},
	"api.port":            {"API_PORT", "PORT"},
	"storage.cache.addr":  {"REDIS_ADDR"},
	"secrets.vault.token": {"VAULT_TOKEN"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("runtime.profile", "dev")
	v.SetDefault("database.max_attempts", 5)
	v.SetDefault("database.retry_delay", "3s")
	v.SetDefault("database.ping_timeout", "5s")
	v.SetDefault("matching.distribute_limit", 5)
	v.SetDefault("matching.report_limit", 5)
	v.SetDefault("matching.distribute_timeout", "30s")
	v.SetDefault("matching.stats_ttl", "30s")
	v.SetDefault("storage.cache.type", "memory")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig 加载配置文件；文件不存在时仅使用默认值与环境变量（serverless 部署常见）
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("无法读取配置文件: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("无法访问配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${VAR} 形式的环境变量引用
func replaceEnvVars(config *Config) {
	config.Database.WriterDSN = expandEnv(config.Database.WriterDSN)
	config.Database.ReaderDSN = expandEnv(config.Database.ReaderDSN)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml，可由 CONFIG_PATH 覆盖）
func LoadAPIConfig() (*Config, error) {
	path := "configs/api.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	return LoadConfig(path)
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// ReaderDSNOrWriter 未配置读库时读写落在同一数据库
func (d DatabaseConfig) ReaderDSNOrWriter() string {
	if d.ReaderDSN != "" {
		return d.ReaderDSN
	}
	return d.WriterDSN
}

// KeepaliveEnabled 未显式关闭时开启
func (d DatabaseConfig) KeepaliveEnabled() bool {
	return d.Keepalive == nil || *d.Keepalive
}

// RetryBudget 生产环境使用配置的重试次数，其余环境固定 2 次以便本地快速失败
func (c *Config) RetryBudget() int {
	if !c.Runtime.IsProduction() {
		return 2
	}
	if c.Database.MaxAttempts <= 0 {
		return 5
	}
	return c.Database.MaxAttempts
}

// HeartbeatInterval 显式配置优先；serverless 30s，长驻进程 5m
func (c *Config) HeartbeatInterval() time.Duration {
	def := 5 * time.Minute
	if c.Runtime.IsServerless() {
		def = 30 * time.Second
	}
	return ParseDuration(c.Database.HeartbeatInterval, def)
}
