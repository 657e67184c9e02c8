package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/piggyhub/piggyhub/internal/config"
)

// InitLogger 按全局配置构建 JSON 结构化日志。stdout 留给诊断输出
// （-inspect 的 JSON 流），日志只走滚动文件或 stderr，两路不混流。
// 日志文件不可用时降级到 stderr，并用降级后的 logger 记一条警告。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别 %q: %w", cfg.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	output, outErr := buildOutput(cfg)
	logger.SetOutput(output)

	// 直接用包级 logrus 的调用方也走同一套输出与格式。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())

	if outErr != nil {
		logger.WithFields(FileFields("logger_fallback", cfg.LogFilePath)).Warn(outErr.Error())
	}
	return logger, nil
}

// buildOutput 返回日志写入目标。未配置文件路径时直接用 stderr；配置了
// 路径但目录建不出来时同样退回 stderr，并把原因交给调用方记录。
func buildOutput(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stderr, fmt.Errorf("创建日志目录失败: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}
