package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/piggyhub/piggyhub/internal/config"
	"github.com/piggyhub/piggyhub/internal/logging"
	"github.com/piggyhub/piggyhub/internal/piggyback"
	"github.com/piggyhub/piggyhub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	cleanup     bool
	inspect     string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["rules"] = len(cfg.Rules)
		fields["storage_root"] = cfg.Global.StorageRoot
		fields["status_root"] = cfg.Global.StatusRoot
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	cache, err := piggyback.New(cfg.Dirs(), logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 piggyback 存储失败: %v\n", err)
		return 1
	}

	switch {
	case opts.cleanup:
		// 清理由外部调度器（通常是 cron）周期性触发，本进程只跑一轮。
		if err := cache.Cleanup(cfg.TimeSettings()); err != nil {
			fmt.Fprintf(stdErr, "清理失败: %v\n", err)
			return 1
		}
		fields := logging.BaseFields("cleanup", opts.configPath)
		fields["version"] = version.Full()
		logger.WithFields(fields).Info("清理完成")
		return 0
	case opts.inspect != "":
		return runInspect(cache, cfg, opts.inspect)
	default:
		fmt.Fprintln(stdErr, "需要指定 -cleanup 或 -inspect <target>")
		return 2
	}
}

// runInspect 对单个 target 求值并逐行输出 JSON，供运维诊断数据时效。
func runInspect(cache *piggyback.Cache, cfg *config.Config, target string) int {
	infos, err := cache.FileInfos(target, cfg.TimeSettings())
	if err != nil {
		fmt.Fprintf(stdErr, "检查 %s 失败: %v\n", target, err)
		return 1
	}

	enc := json.NewEncoder(stdOut)
	for _, info := range infos {
		if err := enc.Encode(info); err != nil {
			fmt.Fprintf(stdErr, "输出失败: %v\n", err)
			return 1
		}
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("piggyhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		cleanup    bool
		inspect    string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PIGGYHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&cleanup, "cleanup", false, "执行一轮过期数据清理后退出")
	fs.StringVar(&inspect, "inspect", "", "输出指定 target 每个 source 的数据时效评估")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("PIGGYHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		cleanup:     cleanup,
		inspect:     inspect,
	}, nil
}
