package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/piggyhub/piggyhub/internal/piggyback"
)

// defaultMaxCacheAge 是未配置任何全局 max_cache_age 时补进去的兜底值，
// 规则解析要求全局作用域必须能解析出这一项。
const defaultMaxCacheAge = Duration(3600 * time.Second)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyRuleDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析载荷根目录: %w", err)
	}
	cfg.Global.StorageRoot = absStorage

	absStatus, err := filepath.Abs(cfg.Global.StatusRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析状态根目录: %w", err)
	}
	cfg.Global.StatusRoot = absStatus

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("StorageRoot", "./piggyback")
	v.SetDefault("StatusRoot", "./piggyback_sources")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.LogMaxSize == 0 {
		g.LogMaxSize = 100
	}
}

// applyRuleDefaults 在用户没写全局 max_cache_age 时追加一条兜底规则。
// 追加在末尾：展开时先到先得，用户显式写的规则仍然优先。
func applyRuleDefaults(cfg *Config) {
	for _, r := range cfg.Rules {
		if r.Scope == "" && r.Key == piggyback.KeyMaxCacheAge {
			return
		}
	}
	cfg.Rules = append(cfg.Rules, RuleConfig{
		Key:   piggyback.KeyMaxCacheAge,
		Value: defaultMaxCacheAge,
	})
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
