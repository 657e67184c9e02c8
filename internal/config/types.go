package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/piggyhub/piggyhub/internal/piggyback"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Seconds 返回取整后的秒数，规则值最终以整秒参与比较。
func (d Duration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：两个存储根目录与日志参数。
type GlobalConfig struct {
	StorageRoot   string `mapstructure:"StorageRoot"`
	StatusRoot    string `mapstructure:"StatusRoot"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// RuleConfig 是一条时间设置规则。Scope 为空表示全局，也可以是精确的
// source/target 名，或 "~" 前缀的 target 正则；规则顺序即优先级，
// 展开后同作用域同 Key 先出现者生效。validity_state 的 Value 是监控
// 状态码，以裸整数写在配置里即可。
type RuleConfig struct {
	Scope string   `mapstructure:"Scope"`
	Key   string   `mapstructure:"Key"`
	Value Duration `mapstructure:"Value"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Rules  []RuleConfig `mapstructure:"Rule"`
}

// Dirs 产出显式的根目录配置，逐个传给 piggyback 组件，不经过全局状态。
func (c *Config) Dirs() piggyback.Dirs {
	return piggyback.Dirs{
		PayloadRoot: c.Global.StorageRoot,
		StatusRoot:  c.Global.StatusRoot,
	}
}

// TimeSettings 把配置里的规则按原始顺序转换成 piggyback 包的规则序列。
func (c *Config) TimeSettings() []piggyback.Rule {
	rules := make([]piggyback.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, piggyback.Rule{
			Scope: r.Scope,
			Key:   r.Key,
			Value: r.Value.Seconds(),
		})
	}
	return rules
}
