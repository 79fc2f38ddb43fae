package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
)

// SessionChain 跨列表源共享的适配器链
type SessionChain interface {
	Resolver
	Reset()
	Close() error
}

// Dependencies 所有列表源共享的组件
type Dependencies struct {
	Chain    SessionChain
	Template extract.Template
	Sink     Sink
	Workers  int       // 普通抓取并发数
	Progress io.Writer // 进度输出,为空时不显示
}

// BuildChain 根据配置创建浏览器会话、普通抓取器和适配器链
func BuildChain(config *Config, headers *HeaderManager) (*crawlers.AdapterChain, error) {
	adapters, err := config.BuildAdapters()
	if err != nil {
		return nil, fmt.Errorf("创建适配器失败: %w", err)
	}

	session := crawlers.NewBrowserSession(crawlers.LaunchRod, crawlers.LaunchOptions{
		Headless:      config.Browser.Headless,
		BinPath:       config.Browser.BinPath,
		LaunchTimeout: config.Browser.LaunchTimeout,
		Headers:       headers.BrowserHeaders(),
	})
	fetcher := crawlers.NewPlainFetcher(config.FetcherConfig(), headers)

	return crawlers.NewAdapterChain(session, fetcher, adapters...)
}

// Crawler 单个列表源的爬取协调器
type Crawler struct {
	source string
	domain string
	config *Config
	deps   Dependencies

	engine *CrawlEngine
}

// NewCrawler 创建爬取器
func NewCrawler(source string, config *Config, deps Dependencies) (*Crawler, error) {
	domain, err := models.HostOf(source)
	if err != nil {
		return nil, fmt.Errorf("解析列表源失败: %w", err)
	}
	if deps.Chain == nil || deps.Template == nil || deps.Sink == nil {
		return nil, fmt.Errorf("爬取器缺少必要组件")
	}

	return &Crawler{
		source: source,
		domain: domain,
		config: config,
		deps:   deps,
	}, nil
}

// Crawl 执行爬取任务
// 执行流程:
//  1. 为该列表源创建新的提取器和引擎
//  2. 从列表源种子请求开始运行
//  3. 生成爬取报告
func (c *Crawler) Crawl(ctx context.Context) (*models.CrawlTask, error) {
	task, err := models.NewCrawlTask(c.source)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatusRunning

	utils.Infof("🚀 开始爬取列表源: %s", c.source)
	utils.Infof("域名: %s", c.domain)

	extractor, err := extract.NewExtractor(c.deps.Template, c.config.ExtractorConfig())
	if err != nil {
		return nil, fmt.Errorf("创建提取器失败: %w", err)
	}

	engine, err := NewCrawlEngine(c.deps.Chain, extractor, c.deps.Sink, EngineConfig{
		Workers:   c.deps.Workers,
		QueueMode: crawlers.QueueMode(c.config.Queue.Priority),
	})
	if err != nil {
		return nil, err
	}
	c.engine = engine

	if c.deps.Progress != nil {
		spinner := utils.NewSpinner(c.deps.Progress, fmt.Sprintf("爬取 %s", c.domain))
		engine.OnRequest = func(*models.CrawlRequest) {
			_ = spinner.Add(1)
		}
		defer func() {
			_ = spinner.Finish()
		}()
	}

	runErr := engine.Run(ctx, extractor.Seed(c.source))

	switch {
	case runErr == nil:
		task.Finish(models.TaskStatusCompleted, nil)
	case errors.Is(runErr, ErrRunAborted):
		task.Finish(models.TaskStatusAborted, runErr)
	default:
		task.Finish(models.TaskStatusFailed, runErr)
	}
	task.Stats = engine.Stats()

	if err := c.writeReport(task); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	utils.Infof("✅ 列表源完成: 输出 %d, 丢弃 %d, 失败请求 %d",
		task.Stats.Emitted, task.Stats.Discarded, task.Stats.FailedRequests)
	utils.Infof("总耗时: %.2f秒", task.Stats.Duration)

	return task, runErr
}

// writeReport 写入 output/<域名>/reports/
func (c *Crawler) writeReport(task *models.CrawlTask) error {
	endTime := time.Now()
	if task.CompletedAt != nil {
		endTime = *task.CompletedAt
	}

	reporter := utils.NewReporter(c.config.Output.BaseDir, c.domain)
	return reporter.GenerateReport(&models.CrawlReport{
		TaskID:       task.ID,
		SourceURL:    task.SourceURL,
		Domain:       task.Domain,
		Status:       task.Status,
		StartTime:    task.CreatedAt,
		EndTime:      endTime,
		Duration:     task.Stats.Duration,
		Stats:        task.Stats,
		Emitted:      c.engine.Emitted(),
		Failed:       c.engine.Failed(),
		ErrorMessage: task.ErrorMessage,
	})
}
