package piggyback

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dirs 指定 piggyback 数据的两个根目录。由调用方显式注入到每个组件，
// 不读取任何全局路径状态。
type Dirs struct {
	// PayloadRoot 布局为 <PayloadRoot>/<target>/<source>，每个文件保存
	// 某个 source 替 target 转发的原始字节。
	PayloadRoot string
	// StatusRoot 下每个 source 一个零字节状态文件，仅 mtime/atime 有意义，
	// 记录该 source 最近一次成功投递任何数据的时刻。
	StatusRoot string
}

func (d Dirs) targetDir(target string) string {
	return filepath.Join(d.PayloadRoot, target)
}

func (d Dirs) payloadPath(target, source string) string {
	return filepath.Join(d.PayloadRoot, target, source)
}

func (d Dirs) statusPath(source string) string {
	return filepath.Join(d.StatusRoot, source)
}

// filesIn 列出目录内的非隐藏条目名；目录不存在视为为空，不是错误。
// 隐藏名（"." 前缀）同时屏蔽了写入过程中的临时文件。
func filesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// removeFile 删除文件并返回是否真的删掉了；文件已不存在不是错误。
func removeFile(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
