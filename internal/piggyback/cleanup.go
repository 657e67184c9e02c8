package piggyback

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// cleanupConcurrency 限制载荷清理阶段并发处理的 target 目录数。
const cleanupConcurrency = 4

// targetSettings 捆绑一个 target 目录、其下的 source 名单以及针对这组
// 主机展开好的规则表，供两个清理阶段共用。
type targetSettings struct {
	target   string
	sources  []string
	settings *settingsMap
}

// Cleanup 是外部调度器周期性调用的清理入口：先按每个 source 的最大
// 保留期清理状态文件，再清理同时超出 max_cache_age 与 validity_period
// 的载荷文件，顺带移除清空的 target 目录。扫描过程中消失的文件和目录
// 不是错误。
func (c *Cache) Cleanup(rules []Rule) error {
	log := c.logger.WithFields(logrus.Fields{
		"action": "cleanup",
		"run_id": uuid.NewString(),
	})
	log.Debug("cleanup piggyback files")

	targets, err := c.collectTargetSettings(rules)
	if err != nil {
		return err
	}

	if err := c.cleanupStatusFiles(targets, log); err != nil {
		return err
	}
	return c.cleanupPayloadFiles(targets, log)
}

func (c *Cache) collectTargetSettings(rules []Rule) ([]targetSettings, error) {
	targetNames, err := filesIn(c.dirs.PayloadRoot)
	if err != nil {
		return nil, err
	}

	targets := make([]targetSettings, 0, len(targetNames))
	for _, target := range targetNames {
		sources, err := filesIn(c.dirs.targetDir(target))
		if err != nil {
			return nil, err
		}
		settings, err := newSettingsMap(sources, target, rules)
		if err != nil {
			return nil, err
		}
		targets = append(targets, targetSettings{
			target:   target,
			sources:  sources,
			settings: settings,
		})
	}
	return targets, nil
}

// cleanupStatusFiles 删除超过保留期的状态文件。同一个 source 可能被多条
// 规则、多个 target 覆盖，保留期取见到的最大 max_cache_age；没有任何
// target 目录引用的状态文件不归本缓存管，记一条日志后放过。
func (c *Cache) cleanupStatusFiles(targets []targetSettings, log logrus.FieldLogger) error {
	maxCacheAgeBySource := make(map[string]time.Duration)
	for _, t := range targets {
		for _, source := range t.sources {
			maxCacheAge, err := t.settings.maxCacheAge(source, t.target)
			if err != nil {
				return err
			}
			if known, ok := maxCacheAgeBySource[source]; !ok || known <= maxCacheAge {
				maxCacheAgeBySource[source] = maxCacheAge
			}
		}
	}

	statusFiles, err := filesIn(c.dirs.StatusRoot)
	if err != nil {
		return err
	}
	for _, source := range statusFiles {
		statusPath := c.dirs.statusPath(source)
		age, err := c.ageOf(statusPath)
		if err != nil {
			// 并发删除不是错误。
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}

		maxCacheAge, tracked := maxCacheAgeBySource[source]
		if !tracked {
			log.WithField("source", source).Debug("no piggyback data from source")
			continue
		}

		if age > maxCacheAge {
			log.WithFields(logrus.Fields{
				"source":  source,
				"age":     renderDuration(age),
				"allowed": renderDuration(maxCacheAge),
			}).Debug("piggyback source status file too old, removing")
			if _, err := removeFile(statusPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanupPayloadFiles 按 target 目录并行清理：载荷只有在同时超出
// max_cache_age 与 validity_period 时才删除。尚在任一窗口内的文件即便
// 已被弃置，动态发现之类的下游仍可能需要它。
func (c *Cache) cleanupPayloadFiles(targets []targetSettings, log logrus.FieldLogger) error {
	g := new(errgroup.Group)
	g.SetLimit(cleanupConcurrency)
	for _, t := range targets {
		t := t
		g.Go(func() error { return c.cleanupTargetDir(t, log) })
	}
	return g.Wait()
}

func (c *Cache) cleanupTargetDir(t targetSettings, log logrus.FieldLogger) error {
	for _, source := range t.sources {
		payloadPath := c.dirs.payloadPath(t.target, source)
		age, err := c.ageOf(payloadPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}

		maxCacheAge, err := t.settings.maxCacheAge(source, t.target)
		if err != nil {
			return err
		}
		validityPeriod, _ := t.settings.validityPeriod(source, t.target)
		if age <= maxCacheAge || age <= validityPeriod {
			continue
		}

		log.WithFields(logrus.Fields{
			"source": source,
			"target": t.target,
		}).Debug("piggyback file outdated, removing")
		if _, err := removeFile(payloadPath); err != nil {
			return err
		}
	}

	// 清空的 target 目录不该留下。并发写入可能让目录重新变为非空，
	// 并发清理可能已抢先删掉目录，两种竞争都吞掉；其余删除失败属于
	// 意外 I/O 错误，照常上抛。
	if err := os.Remove(c.dirs.targetDir(t.target)); err != nil {
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	log.WithField("target", t.target).Debug("piggyback folder empty, removed")
	return nil
}
