package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/piggyhub/piggyhub/internal/piggyback"
)

var supportedRuleKeys = map[string]struct{}{
	piggyback.KeyMaxCacheAge:    {},
	piggyback.KeyValidityPeriod: {},
	piggyback.KeyValidityState:  {},
}

const supportedRuleKeyList = "max_cache_age|validity_period|validity_state"

// maxValidityState 对应监控系统的状态码上限（0 OK ～ 3 UNKNOWN）。
const maxValidityState = 3

// Validate 针对语义级别做进一步校验，防止非法配置启动。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.StorageRoot == "" {
		return newFieldError("Global.StorageRoot", "不能为空")
	}
	if g.StatusRoot == "" {
		return newFieldError("Global.StatusRoot", "不能为空")
	}
	if sameDir(g.StorageRoot, g.StatusRoot) {
		return newFieldError("Global.StatusRoot", "不能与 StorageRoot 相同")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}

	hasGlobalMaxCacheAge := false
	for i := range c.Rules {
		rule := &c.Rules[i]

		key := strings.TrimSpace(rule.Key)
		if key == "" {
			return newFieldError(ruleField(i, "Key"), "不能为空")
		}
		if _, ok := supportedRuleKeys[key]; !ok {
			return newFieldError(ruleField(i, "Key"), "仅支持 "+supportedRuleKeyList)
		}
		rule.Key = key

		if rule.Value.DurationValue() < 0 {
			return newFieldError(ruleField(i, "Value"), "不能为负数")
		}
		if key == piggyback.KeyValidityState && rule.Value.Seconds() > maxValidityState {
			return newFieldError(ruleField(i, "Value"),
				fmt.Sprintf("监控状态码必须在 0-%d", maxValidityState))
		}

		if err := validateScope(rule.Scope); err != nil {
			return fmt.Errorf("%s: %w", ruleField(i, "Scope"), err)
		}

		if rule.Scope == "" && key == piggyback.KeyMaxCacheAge {
			hasGlobalMaxCacheAge = true
		}
	}

	// 规则解析要求全局 max_cache_age 必定存在；Load 会自动补默认值，
	// 手工构造的 Config 也必须满足这一点。
	if !hasGlobalMaxCacheAge {
		return newFieldError("Rule", "缺少全局 max_cache_age 规则")
	}

	return nil
}

// validateScope 校验作用域表达式：正则作用域必须可编译（与运行时相同的
// 前缀匹配锚定形式），精确作用域不允许路径分隔符或隐藏名前缀。
func validateScope(scope string) error {
	if scope == "" {
		return nil
	}
	if strings.HasPrefix(scope, piggyback.RegexScopePrefix) {
		pattern := strings.TrimPrefix(scope, piggyback.RegexScopePrefix)
		if _, err := regexp.Compile("^(?:" + pattern + ")"); err != nil {
			return fmt.Errorf("正则无法编译: %w", err)
		}
		return nil
	}
	if strings.ContainsAny(scope, "/\\") {
		return errors.New("主机名不允许包含路径分隔符")
	}
	if strings.HasPrefix(scope, ".") {
		return errors.New("主机名不允许以 . 开头")
	}
	return nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
