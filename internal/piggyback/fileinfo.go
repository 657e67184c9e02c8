package piggyback

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"
)

// FileInfo 是对一个 (source, target) 组合求值后的瞬时结果。Valid 加上
// 人类可读的 Message 就是对外的全部契约；Status 仅在失效宽限期内携带
// 配置的监控状态码，其余情况为 0。
type FileInfo struct {
	Source   string `json:"source"`
	FilePath string `json:"file_path"`
	Valid    bool   `json:"valid"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
}

// newFileInfo 在构造期拒绝空 Message：结果必须始终可向人解释。
func newFileInfo(source, filePath string, valid bool, message string, status int) (FileInfo, error) {
	if message == "" {
		return FileInfo{}, errors.New("piggyback file info requires a message")
	}
	return FileInfo{
		Source:   source,
		FilePath: filePath,
		Valid:    valid,
		Message:  message,
		Status:   status,
	}, nil
}

// FileInfos 对 target 的每个已知 source 求值一次，目录枚举顺序返回，
// 每个 source 恰好一条记录；调用方不应依赖更多的顺序语义。
func (c *Cache) FileInfos(target string, rules []Rule) ([]FileInfo, error) {
	sources, err := c.SourceHostnames(target)
	if err != nil {
		return nil, err
	}

	settings, err := newSettingsMap(sources, target, rules)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(sources))
	for _, source := range sources {
		info, err := c.fileInfo(source, target, settings)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// HasData 判断 target 当前是否存在至少一条有效的 piggyback 数据。
func (c *Cache) HasData(target string, rules []Rule) (bool, error) {
	infos, err := c.FileInfos(target, rules)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Valid {
			return true, nil
		}
	}
	return false, nil
}

// Pair 表示一对仍有有效数据的 (source, target) 主机组合。
type Pair struct {
	Source string
	Target string
}

// SourceAndTargetPairs 枚举整棵存储树中数据仍然有效的主机组合，
// 供动态主机发现类的消费方使用。
func (c *Cache) SourceAndTargetPairs(rules []Rule) ([]Pair, error) {
	targets, err := filesIn(c.dirs.PayloadRoot)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, target := range targets {
		infos, err := c.FileInfos(target, rules)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if info.Valid {
				pairs = append(pairs, Pair{Source: info.Source, Target: target})
			}
		}
	}
	return pairs, nil
}

// fileInfo 按固定顺序检查：文件缺失 → 超过年龄上限 → 被弃置（状态文件
// 比载荷新，或状态文件缺失）→ 正常。未弃置的载荷上限就是 max_cache_age；
// 只有被弃置的载荷才把上限放宽到 validity_period，否则宽限窗口永远活不过
// 缓存上限。
func (c *Cache) fileInfo(source, target string, settings *settingsMap) (FileInfo, error) {
	payloadPath := c.dirs.payloadPath(target, source)

	age, err := c.ageOf(payloadPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newFileInfo(source, payloadPath, false, "Piggyback file is missing", 0)
		}
		return FileInfo{}, err
	}

	maxCacheAge, err := settings.maxCacheAge(source, target)
	if err != nil {
		return FileInfo{}, err
	}
	validityPeriod, hasPeriod := settings.validityPeriod(source, target)

	abandoned, err := c.abandoned(source, payloadPath)
	if err != nil {
		return FileInfo{}, err
	}

	allowed := maxCacheAge
	if abandoned && hasPeriod && validityPeriod > allowed {
		allowed = validityPeriod
	}
	if age > allowed {
		message := fmt.Sprintf("Piggyback file too old (age: %s, allowed: %s)",
			renderDuration(age), renderDuration(allowed))
		return newFileInfo(source, payloadPath, false, message, 0)
	}

	if abandoned {
		leftNote := validityMessage(age, validityPeriod, hasPeriod)
		message := fmt.Sprintf("Piggyback data not updated by source '%s'%s", source, leftNote)
		if leftNote == "" {
			return newFileInfo(source, payloadPath, false, message, 0)
		}
		return newFileInfo(source, payloadPath, true, message, settings.validityState(source, target))
	}

	return newFileInfo(source, payloadPath, true,
		fmt.Sprintf("Successfully processed from source '%s'", source), 0)
}

// abandoned 判定 source 是否已再次上报却不再携带该 target 的数据：
// 状态文件 mtime 严格新于载荷文件即是。任何一个文件缺失都按弃置处理，
// 拿不到证据时保守地当作“确定被弃置”。
func (c *Cache) abandoned(source, payloadPath string) (bool, error) {
	statusInfo, err := os.Stat(c.dirs.statusPath(source))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	payloadInfo, err := os.Stat(payloadPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return statusInfo.ModTime().After(payloadInfo.ModTime()), nil
}

// validityMessage 计算失效宽限期剩余时间的提示；未配置宽限期或剩余时间
// 不为正时返回空串，调用方以空串判定“不再有效”。
func validityMessage(age, validityPeriod time.Duration, hasPeriod bool) string {
	if !hasPeriod {
		return ""
	}
	left := validityPeriod - age
	if left <= 0 {
		return ""
	}
	return fmt.Sprintf(" (still valid, %s left)", renderDuration(left))
}

// renderDuration 按 H:MM:SS 渲染时长，超过一天时带 "N day(s), " 前缀，
// 例如 0:03:04 或 1 day, 1:43:55。
func renderDuration(d time.Duration) string {
	total := int64(math.Round(d.Seconds()))
	if total < 0 {
		total = -total
	}

	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	clock := fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	switch {
	case days == 0:
		return clock
	case days == 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
