package piggyback

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Rule 的三个合法 Key。Value 对前两者是秒数，对 validity_state 是
// 失效宽限期内上报的监控状态码。
const (
	KeyMaxCacheAge    = "max_cache_age"
	KeyValidityPeriod = "validity_period"
	KeyValidityState  = "validity_state"
)

// RegexScopePrefix 标记 Scope 为针对 target 名的正则表达式而非精确匹配。
const RegexScopePrefix = "~"

// Rule 是外部规则配置产出的一条时间设置。Scope 为空表示全局；
// 可以是精确的 source/target 名；"~" 前缀表示匹配 target 的正则。
// 规则有序，展开后同 (scope, key) 先注册者生效。
type Rule struct {
	Scope string
	Key   string
	Value int
}

// scopeKey 区分全局作用域与具体主机名作用域。显式的 tagged variant，
// 避免拿空字符串当哨兵。
type scopeKey struct {
	global bool
	host   string
}

func globalScope() scopeKey          { return scopeKey{global: true} }
func hostScope(name string) scopeKey { return scopeKey{host: name} }

type settingKey struct {
	scope scopeKey
	key   string
}

// settingsMap 是针对一组已知 source 与一个 target 展开后的规则表。
// 展开规则（与规则注册顺序一致，先到先得）：
//   - 空 Scope、精确命中已知 source 或 target 本身 → 按字面作用域注册；
//   - "~" 正则且匹配 target → 归一化为 target 的精确作用域注册；
//   - 其余规则与本 (source, target) 组合无关，忽略。
type settingsMap struct {
	expanded map[settingKey]int
}

func newSettingsMap(sources []string, target string, rules []Rule) (*settingsMap, error) {
	known := make(map[string]struct{}, len(sources))
	for _, source := range sources {
		known[source] = struct{}{}
	}

	expanded := make(map[settingKey]int)
	register := func(scope scopeKey, key string, value int) {
		sk := settingKey{scope: scope, key: key}
		if _, ok := expanded[sk]; !ok {
			expanded[sk] = value
		}
	}

	for _, rule := range rules {
		_, knownSource := known[rule.Scope]
		switch {
		case rule.Scope == "":
			register(globalScope(), rule.Key, rule.Value)
		case knownSource || rule.Scope == target:
			register(hostScope(rule.Scope), rule.Key, rule.Value)
		case strings.HasPrefix(rule.Scope, RegexScopePrefix):
			matched, err := matchTarget(strings.TrimPrefix(rule.Scope, RegexScopePrefix), target)
			if err != nil {
				return nil, fmt.Errorf("time setting scope %q: %w", rule.Scope, err)
			}
			if matched {
				register(hostScope(target), rule.Key, rule.Value)
			}
		}
	}

	return &settingsMap{expanded: expanded}, nil
}

// matchTarget 按前缀匹配语义（锚定开头、不要求匹配到结尾）执行正则。
func matchTarget(pattern, target string) (bool, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return false, err
	}
	return re.MatchString(target), nil
}

// match 依次尝试 target 作用域、source 作用域、全局作用域。
func (m *settingsMap) match(key, source, target string) (int, bool) {
	if v, ok := m.expanded[settingKey{scope: hostScope(target), key: key}]; ok {
		return v, true
	}
	if v, ok := m.expanded[settingKey{scope: hostScope(source), key: key}]; ok {
		return v, true
	}
	v, ok := m.expanded[settingKey{scope: globalScope(), key: key}]
	return v, ok
}

// maxCacheAge 任何 (source, target) 组合都必须能解析出值；
// 解析不到说明配置缺少全局兜底，是配置错误而非数据状态。
func (m *settingsMap) maxCacheAge(source, target string) (time.Duration, error) {
	v, ok := m.match(KeyMaxCacheAge, source, target)
	if !ok {
		return 0, fmt.Errorf("no %s configured for source %q and piggybacked host %q", KeyMaxCacheAge, source, target)
	}
	return time.Duration(v) * time.Second, nil
}

// validityPeriod 可选；未配置时返回 (0, false)，与配置为 0 有区别。
func (m *settingsMap) validityPeriod(source, target string) (time.Duration, bool) {
	v, ok := m.match(KeyValidityPeriod, source, target)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Second, true
}

// validityState 可选，默认 0（OK）。
func (m *settingsMap) validityState(source, target string) int {
	v, ok := m.match(KeyValidityState, source, target)
	if !ok {
		return 0
	}
	return v
}
