// Copyright 2026 fanjia1024
// Kubernetes mounted secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// K8sConfig 挂载卷形式的 Kubernetes Secret
type K8sConfig struct {
	SecretsPath string // Secret 挂载目录，每个 key 一个文件，默认 /etc/secrets
}

type k8sStore struct {
	secretsPath string
	mu          sync.RWMutex
	cache       map[string]string
}

// NewK8sStore 创建读取挂载目录的 secret store；目录不存在时报错（不在 Kubernetes 中？）
func NewK8sStore(config K8sConfig) (Store, error) {
	secretsPath := "/etc/secrets"
	if config.SecretsPath != "" {
		secretsPath = config.SecretsPath
	}
	if _, err := os.Stat(secretsPath); err != nil {
		return nil, fmt.Errorf("kubernetes secrets path not accessible: %s: %w", secretsPath, err)
	}
	return &k8sStore{
		secretsPath: secretsPath,
		cache:       make(map[string]string),
	}, nil
}

func (k *k8sStore) Get(ctx context.Context, key string) (string, error) {
	k.mu.RLock()
	if val, ok := k.cache[key]; ok {
		k.mu.RUnlock()
		return val, nil
	}
	k.mu.RUnlock()

	// key 不允许跳出挂载目录
	name := filepath.Clean(key)
	if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid secret key: %s", key)
	}
	data, err := os.ReadFile(filepath.Join(k.secretsPath, name))
	if err != nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	// 挂载文件常以换行结尾，DSN 中不能保留
	val := strings.TrimRight(string(data), "\r\n")

	k.mu.Lock()
	k.cache[key] = val
	k.mu.Unlock()
	return val, nil
}
