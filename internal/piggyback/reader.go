package piggyback

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// RawDataInfo 把一次求值结果与对应的载荷字节绑在一起。Info.Valid 的
// 过滤由调用方负责：无效条目同样会出现在结果里。
type RawDataInfo struct {
	Info    FileInfo
	RawData []byte
}

// RawData 返回 target 当前每个已知 source 的 (求值结果, 载荷) 对。
// target 为空直接短路成空结果，不触碰存储。求值与读取之间文件可能
// 消失：单条读取失败只降级该条目为无效加说明，绝不中断整批。
func (c *Cache) RawData(target string, rules []Rule) ([]RawDataInfo, error) {
	if target == "" {
		return nil, nil
	}

	infos, err := c.FileInfos(target, rules)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		c.logger.WithFields(logrus.Fields{
			"action": "read",
			"target": target,
		}).Debug("no piggyback files, skip processing")
		return nil, nil
	}

	out := make([]RawDataInfo, 0, len(infos))
	for _, info := range infos {
		raw, readErr := os.ReadFile(info.FilePath)
		if readErr != nil {
			degraded, err := newFileInfo(info.Source, info.FilePath, false,
				fmt.Sprintf("Cannot read piggyback raw data from source '%s': %v", info.Source, readErr), 0)
			if err != nil {
				return nil, err
			}
			info = degraded
			raw = nil
		}

		c.logger.WithFields(logrus.Fields{
			"action": "read",
			"target": target,
			"source": info.Source,
			"valid":  info.Valid,
		}).Debug(info.Message)

		out = append(out, RawDataInfo{Info: info, RawData: raw})
	}
	return out, nil
}
