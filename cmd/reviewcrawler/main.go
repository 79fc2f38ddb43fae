package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/reviewcrawler/internal/core"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/storage"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile  string
	verbose     bool
	logLevel    string
	storagePath string

	// HTTP头部参数
	headers []string

	// 爬取参数
	targetURL string
	urlFile   string
	workers   int
	headless  bool
	outputDir string

	// 加载后的配置
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "reviewcrawler",
	Short: "评测站点多跳爬取工具",
	Long: `reviewcrawler - 评测站点结构化数据爬取工具

从部分内容由客户端渲染的评测站点提取结构化评测记录:
  • 浏览器适配器链(延迟加载 / 滚动分页)
  • 列表页 -> 评测页 -> 分类页 多跳提取
  • 普通页面使用HTTP并发抓取
  • 结果保存到SQLite,支持分页查询

示例:
  reviewcrawler -u https://example.com/analisis
  reviewcrawler -f sources.txt -H "Cookie: consent=1"
  reviewcrawler query --platform PC --tag Action --sort score --desc --limit 10

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		var headlessFlag *bool
		if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
			headlessFlag = &headless
		}
		config.MergeCLIFlags(workers, headlessFlag, logLevel, outputDir, storagePath)

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if config.File != "" {
			utils.Debugf("使用配置文件: %s", config.File)
		}
		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if targetURL == "" && urlFile == "" && len(appConfig.Sources) == 0 {
			return cmd.Help()
		}

		if err := ValidateFlags(targetURL, urlFile, workers); err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return err
		}

		sources, err := resolveSources(targetURL, urlFile, appConfig.Sources)
		if err != nil {
			return err
		}

		// Ctrl+C 取消运行,浏览器会话随批量结束关闭
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runCrawl(ctx, appConfig, sources)
	},
}

// runCrawl 组装组件并依次爬取列表源
func runCrawl(ctx context.Context, config *core.Config, sources []string) error {
	headerManager, err := core.NewHeaderManager(config.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	utils.Debugf("HTTP头部: %s", headerManager.SafeString())

	template, err := extract.NewSiteTemplate(config.TemplateConfig())
	if err != nil {
		return fmt.Errorf("创建提取模板失败: %w", err)
	}

	store, err := storage.Open(config.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := core.BuildChain(config, headerManager)
	if err != nil {
		return err
	}

	deps := core.Dependencies{
		Chain:    chain,
		Template: template,
		Sink:     store,
		Workers:  config.PoolSize(),
	}
	if config.Output.Progress {
		deps.Progress = os.Stderr
	}
	utils.Infof("普通抓取并发数: %d", deps.Workers)

	summary, err := core.NewBatchCrawler(config, deps).CrawlBatch(ctx, sources)
	if summary != nil {
		printStats(summary)
	}
	if err != nil {
		return fmt.Errorf("爬取失败: %w", err)
	}

	utils.Info("✨ 爬取任务完成!")
	return nil
}

// resolveSources 列表源优先级: -u > --url-file > 配置文件
func resolveSources(targetURL, urlFile string, configured []string) ([]string, error) {
	if targetURL != "" {
		return []string{targetURL}, nil
	}
	if urlFile != "" {
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return nil, fmt.Errorf("读取URL文件失败: %w", err)
		}
		return urls, nil
	}

	for _, source := range configured {
		if err := ValidateURL(source); err != nil {
			return nil, fmt.Errorf("配置文件中的列表源无效 [%s]: %w", source, err)
		}
	}
	return configured, nil
}

// printStats 显示统计结果
func printStats(summary *core.BatchSummary) {
	stats := summary.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 列表源: %d (成功 %d, 失败 %d)\n", summary.TotalSources, summary.SuccessCount, summary.FailCount)
	fmt.Printf("✅ 请求数: %d (浏览器 %d, 普通 %d)\n", stats.Requests, stats.BrowserRequests, stats.PlainRequests)
	fmt.Printf("✅ 列表页: %d\n", stats.ListingPages)
	fmt.Printf("📦 输出评测: %d\n", stats.Emitted)
	fmt.Printf("🗑️  丢弃实体: %d\n", stats.Discarded)
	fmt.Printf("❌ 失败请求: %d (超时 %d, 抓取失败 %d, 保存失败 %d)\n",
		stats.FailedRequests, stats.Timeouts, stats.FetchFailures, stats.StoreFailures)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", summary.TotalDuration)
	if summary.Aborted {
		fmt.Println("⚠️  浏览器会话不可用,爬取已中止")
	}
	fmt.Println("==================================================")
}

var versionCmd = &cobra.Command{
	Use:              "version",
	Short:            "显示版本信息",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reviewcrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "db", "", "SQLite数据库路径")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 爬取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "列表源URL")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含列表源URL的文件路径")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "普通抓取并发数 (默认使用配置文件)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
