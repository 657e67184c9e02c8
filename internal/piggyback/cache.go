package piggyback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache 是 piggyback 存储树上所有操作的入口。多个进程可以同时对同一棵
// 目录树执行读取、写入与清理，之间不存在锁层；所有竞争都通过 mtime 比较
// 与“文件消失即跳过”来消解。
type Cache struct {
	dirs   Dirs
	logger logrus.FieldLogger

	// now 可在测试中替换，用于制造确定的文件年龄。
	now func() time.Time
}

// New 解析并创建两个根目录，返回可用的缓存实例。logger 为 nil 时退回
// logrus 全局实例。
func New(dirs Dirs, logger logrus.FieldLogger) (*Cache, error) {
	if dirs.PayloadRoot == "" || dirs.StatusRoot == "" {
		return nil, errors.New("piggyback storage roots required")
	}

	payloadRoot, err := filepath.Abs(dirs.PayloadRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve payload root: %w", err)
	}
	statusRoot, err := filepath.Abs(dirs.StatusRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve status root: %w", err)
	}
	if payloadRoot == statusRoot {
		return nil, errors.New("payload root and status root must differ")
	}

	for _, dir := range []string{payloadRoot, statusRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Cache{
		dirs:   Dirs{PayloadRoot: payloadRoot, StatusRoot: statusRoot},
		logger: logger,
		now:    time.Now,
	}, nil
}

// SourceHostnames 返回为 target 投递过数据的 source 名单；target 为空时
// 遍历所有 target 目录，返回全部出现过的 source（可重复）。
func (c *Cache) SourceHostnames(target string) ([]string, error) {
	if target != "" {
		return filesIn(c.dirs.targetDir(target))
	}

	targets, err := filesIn(c.dirs.PayloadRoot)
	if err != nil {
		return nil, err
	}
	var sources []string
	for _, t := range targets {
		names, err := filesIn(c.dirs.targetDir(t))
		if err != nil {
			return nil, err
		}
		sources = append(sources, names...)
	}
	return sources, nil
}

// ageOf 返回 now 与文件 mtime 的差值；文件不存在时原样返回 stat 错误。
func (c *Cache) ageOf(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return c.now().Sub(info.ModTime()), nil
}
