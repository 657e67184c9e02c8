package config

import (
	"testing"
	"time"

	"github.com/piggyhub/piggyhub/internal/piggyback"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.StorageRoot == "" || cfg.Global.StatusRoot == "" {
		t.Fatalf("根目录应当被保留: %+v", cfg.Global)
	}
	if cfg.Global.LogMaxSize == 0 {
		t.Fatalf("LogMaxSize 应该自动填充默认值")
	}
	if len(cfg.Rules) != 3 {
		t.Fatalf("已有全局 max_cache_age 时不应追加默认规则，得到 %d 条", len(cfg.Rules))
	}
}

func TestLoadAppendsDefaultMaxCacheAge(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "no_rules.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if len(cfg.Rules) != 1 {
		t.Fatalf("应自动补全局 max_cache_age 规则，得到 %d 条", len(cfg.Rules))
	}
	rule := cfg.Rules[0]
	if rule.Scope != "" || rule.Key != piggyback.KeyMaxCacheAge || rule.Value.Seconds() != 3600 {
		t.Fatalf("默认规则不符合预期: %+v", rule)
	}
}

func TestLoadRejectsUnknownRuleKey(t *testing.T) {
	if _, err := Load(testConfigPath(t, "bad_key.toml")); err == nil {
		t.Fatalf("未知规则 Key 应返回错误")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}

func TestDurationAcceptsSecondsAndStrings(t *testing.T) {
	path := writeTempConfig(t, `
StorageRoot = "./piggyback"
StatusRoot = "./piggyback_sources"

[[Rule]]
Key = "max_cache_age"
Value = "90m"

[[Rule]]
Key = "validity_period"
Value = 7200
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Rules[0].Value.DurationValue() != 90*time.Minute {
		t.Fatalf("应支持 Duration 字符串，得到 %v", cfg.Rules[0].Value.DurationValue())
	}
	if cfg.Rules[1].Value.Seconds() != 7200 {
		t.Fatalf("应支持纯秒整数，得到 %d", cfg.Rules[1].Value.Seconds())
	}
}

func TestTimeSettingsPreservesOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = append(cfg.Rules, RuleConfig{Scope: "srv1", Key: "validity_period", Value: Duration(2 * time.Hour)})

	rules := cfg.TimeSettings()
	if len(rules) != 2 {
		t.Fatalf("规则数量不符: %d", len(rules))
	}
	if rules[0].Key != piggyback.KeyMaxCacheAge || rules[0].Value != 3600 {
		t.Fatalf("第一条规则应保持原位: %+v", rules[0])
	}
	if rules[1].Scope != "srv1" || rules[1].Value != 7200 {
		t.Fatalf("第二条规则转换有误: %+v", rules[1])
	}
}

func TestDirsExposesBothRoots(t *testing.T) {
	cfg := validConfig()
	dirs := cfg.Dirs()
	if dirs.PayloadRoot != cfg.Global.StorageRoot || dirs.StatusRoot != cfg.Global.StatusRoot {
		t.Fatalf("Dirs 映射有误: %+v", dirs)
	}
}
