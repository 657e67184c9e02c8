package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// validConfig 构造一份已通过 Load 级默认值处理的最小合法配置。
func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			StorageRoot: "/tmp/piggyback",
			StatusRoot:  "/tmp/piggyback_sources",
			LogLevel:    "info",
		},
		Rules: []RuleConfig{
			{Key: "max_cache_age", Value: Duration(time.Hour)},
		},
	}
}
