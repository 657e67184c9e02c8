package piggyback

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StoreRawData 落盘 source 在一个投递周期内送来的全部数据：每个 target
// 一份载荷文件（按行拼接、末尾补换行、整体覆盖），随后刷新该 source 的
// 状态文件。空批次表示本周期该 source 没有任何数据，删除其状态文件即可，
// 之前依赖它的 target 在下次读取时会落入弃置分支。
func (c *Cache) StoreRawData(source string, payloads map[string][][]byte) error {
	log := c.logger.WithFields(logrus.Fields{
		"action":   "store",
		"source":   source,
		"cycle_id": uuid.NewString(),
	})

	if len(payloads) == 0 {
		log.Debug("received no piggyback data")
		_, err := c.RemoveSourceStatusFile(source)
		return err
	}

	// 空 target 名会让载荷路径坍缩到 PayloadRoot 根上，污染目录枚举，
	// 在写入任何文件之前整批拒绝。
	for target := range payloads {
		if target == "" {
			return errors.New("piggyback target hostname must not be empty")
		}
	}

	written := make([]string, 0, len(payloads))
	for target, lines := range payloads {
		payloadPath := c.dirs.payloadPath(target, source)
		if err := writePayloadFile(payloadPath, lines); err != nil {
			return fmt.Errorf("store piggyback data for %q: %w", target, err)
		}
		log.WithField("target", target).Debug("stored piggyback payload")
		written = append(written, payloadPath)
	}

	log.WithField("targets", len(payloads)).Debug("received piggyback data")
	return c.writeStatusFile(source, written)
}

// RemoveSourceStatusFile 删除 source 的状态文件，把它之前投递的数据
// 标记为过期。返回是否真的删掉了文件。
func (c *Cache) RemoveSourceStatusFile(source string) (bool, error) {
	return removeFile(c.dirs.statusPath(source))
}

// writePayloadFile 以临时文件 + rename 的方式整体覆盖载荷文件，
// 失败时清理临时文件，保证读者看不到半截内容。
func writePayloadFile(path string, lines [][]byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".new-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	body := append(bytes.Join(lines, []byte("\n")), '\n')
	_, writeErr := tmp.Write(body)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return writeErr
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// writeStatusFile 创建 source 的状态文件。顺序是刻意的：先在状态目录里
// 生成临时文件并取其时间戳，把这组时间戳通过 utime 回写到本周期所有
// 载荷文件上，最后才 rename 临时文件为正式状态文件。这样保证同一周期
// 内载荷的 mtime 不会晚于状态文件，否则刚写完的数据会被并发读者误判
// 为已弃置。
func (c *Cache) writeStatusFile(source string, payloadPaths []string) error {
	if err := os.MkdirAll(c.dirs.StatusRoot, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dirs.StatusRoot, "."+source+".new-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	stat, err := os.Stat(tmpName)
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	// atime 与 mtime 统一取临时文件的 mtime；文件刚创建，两者一致。
	stamp := stat.ModTime()
	for _, payloadPath := range payloadPaths {
		if err := os.Chtimes(payloadPath, stamp, stamp); err != nil {
			// 载荷可能已被并发清理删除，跳过即可。
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			os.Remove(tmpName)
			return err
		}
	}

	if err := os.Rename(tmpName, c.dirs.statusPath(source)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
