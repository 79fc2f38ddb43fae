package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
)

// BatchCrawler 批量爬取器
// 列表源依次处理,共享同一个浏览器会话
type BatchCrawler struct {
	config        *Config
	deps          Dependencies
	batchDelay    time.Duration
	continueOnErr bool

	sleep func(ctx context.Context, d time.Duration) error
}

// BatchResult 单个列表源的结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Status      models.TaskStatus
	Stats       models.TaskStats
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	TotalSources  int
	SuccessCount  int
	FailCount     int
	Aborted       bool // 会话失效导致批量中止
	Stats         models.TaskStats
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCrawler 创建批量爬取器
func NewBatchCrawler(config *Config, deps Dependencies) *BatchCrawler {
	return &BatchCrawler{
		config:        config,
		deps:          deps,
		batchDelay:    config.Batch.Delay,
		continueOnErr: config.Batch.ContinueOnError,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// CrawlBatch 依次爬取列表源,结束时关闭浏览器会话
// 会话失效时无论continue_on_error如何都会中止,并返回包装了ErrRunAborted的错误
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, sources []string) (summary *BatchSummary, err error) {
	utils.Infof("🚀 开始批量爬取: %d个列表源", len(sources))

	summary = &BatchSummary{
		TotalSources: len(sources),
		Results:      make([]BatchResult, 0, len(sources)),
	}

	defer func() {
		if closeErr := bc.deps.Chain.Close(); closeErr != nil {
			utils.Warnf("关闭浏览器会话失败: %v", closeErr)
		}
	}()

	startTime := time.Now()

	for i, source := range sources {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(sources))

		// 每个列表源从头开始滚动
		bc.deps.Chain.Reset()

		result := bc.crawlSource(ctx, source)
		summary.Results = append(summary.Results, result)
		summary.Stats.Add(result.Stats)

		if result.Success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
			utils.Errorf("❌ 爬取失败: %v", result.Error)

			if errors.Is(result.Error, ErrRunAborted) {
				summary.Aborted = true
				err = result.Error
				utils.Warn("浏览器会话不可用,批量爬取中止")
				break
			}
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
			if !bc.continueOnErr {
				utils.Warn("批量爬取中止 (continue_on_error=false)")
				break
			}
		}

		if i < len(sources)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个列表源...", bc.batchDelay.Seconds())
			if sleepErr := bc.sleep(ctx, bc.batchDelay); sleepErr != nil {
				err = sleepErr
				break
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bc.printSummary(summary)

	return summary, err
}

// crawlSource 爬取单个列表源
func (bc *BatchCrawler) crawlSource(ctx context.Context, source string) BatchResult {
	result := BatchResult{
		URL:         source,
		ProcessedAt: time.Now(),
	}

	startTime := time.Now()
	defer func() {
		result.Duration = time.Since(startTime).Seconds()
	}()

	crawler, err := NewCrawler(source, bc.config, bc.deps)
	if err != nil {
		result.Error = fmt.Errorf("创建爬取器失败: %w", err)
		result.Status = models.TaskStatusFailed
		return result
	}

	task, err := crawler.Crawl(ctx)
	if task != nil {
		result.Status = task.Status
		result.Stats = task.Stats
	}
	if err != nil {
		result.Error = fmt.Errorf("爬取失败: %w", err)
		return result
	}

	result.Success = true
	return result
}

// printSummary 打印批量爬取摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量爬取摘要")
	utils.Info("==================================================")
	utils.Infof("列表源数: %d", summary.TotalSources)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 输出评测: %d", summary.Stats.Emitted)
	utils.Infof("🗑️  丢弃实体: %d", summary.Stats.Discarded)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的列表源:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
