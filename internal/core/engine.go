package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
	"golang.org/x/sync/semaphore"
)

// ErrRunAborted 会话失效导致运行中止
var ErrRunAborted = errors.New("爬取已中止")

// Resolver 将请求解析为文档(适配器链)
type Resolver interface {
	Resolve(ctx context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error)
	IsBrowserRouted(req *models.CrawlRequest) bool
}

// Sink 已完成实体的持久化
type Sink interface {
	Save(ctx context.Context, review *models.Review) error
}

// EngineConfig 引擎配置
type EngineConfig struct {
	Workers   int                // 普通抓取并发数
	QueueMode crawlers.QueueMode // 队列优先级规则
}

// fetchResult 普通抓取worker的结果
type fetchResult struct {
	req *models.CrawlRequest
	doc *models.ResolvedDocument
	err error
}

// CrawlEngine 爬取引擎
// 单一循环持有队列并调用所有回调; 浏览器请求在循环内串行解析,
// 普通抓取交给有界worker池,结果通过channel回到循环
type CrawlEngine struct {
	resolver  Resolver
	extractor *extract.Extractor
	sink      Sink
	queue     *crawlers.RequestQueue
	workers   int

	stats   models.TaskStats
	emitted []models.EntityInfo
	failed  []models.FailedChainInfo

	// OnRequest 每个请求处理完成后调用(进度显示)
	OnRequest func(req *models.CrawlRequest)
}

// NewCrawlEngine 创建引擎
func NewCrawlEngine(resolver Resolver, extractor *extract.Extractor, sink Sink, config EngineConfig) (*CrawlEngine, error) {
	if resolver == nil || extractor == nil || sink == nil {
		return nil, fmt.Errorf("引擎缺少必要组件")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueMode == "" {
		config.QueueMode = crawlers.QueueFIFO
	}

	return &CrawlEngine{
		resolver:  resolver,
		extractor: extractor,
		sink:      sink,
		queue:     crawlers.NewRequestQueue(config.QueueMode),
		workers:   config.Workers,
	}, nil
}

// Run 从种子请求开始运行,直到队列为空且没有进行中的抓取
// 会话失效时返回包装了ErrRunAborted的错误,其余失败只影响对应请求链
func (e *CrawlEngine) Run(ctx context.Context, seeds ...*models.CrawlRequest) error {
	startTime := time.Now()
	defer func() {
		e.finish(startTime)
	}()

	for _, seed := range seeds {
		if _, err := e.queue.Push(seed); err != nil {
			return fmt.Errorf("种子请求无效: %w", err)
		}
	}

	sem := semaphore.NewWeighted(int64(e.workers))
	// 容量等于worker数,worker发送结果时不会阻塞
	results := make(chan fetchResult, e.workers)
	inFlight := 0

	var runErr error

	for runErr == nil {
		// 先处理已完成的普通抓取
		drained := false
		for !drained && runErr == nil {
			select {
			case res := <-results:
				inFlight--
				runErr = e.process(ctx, res.req, res.doc, res.err)
			default:
				drained = true
			}
		}
		if runErr != nil {
			break
		}

		req, ok := e.queue.Pop()
		if !ok {
			if inFlight == 0 {
				break
			}
			select {
			case res := <-results:
				inFlight--
				runErr = e.process(ctx, res.req, res.doc, res.err)
			case <-ctx.Done():
				runErr = ctx.Err()
			}
			continue
		}

		if e.resolver.IsBrowserRouted(req) {
			doc, err := e.resolver.Resolve(ctx, req)
			runErr = e.process(ctx, req, doc, err)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		inFlight++
		go func(req *models.CrawlRequest) {
			defer sem.Release(1)
			doc, err := e.resolver.Resolve(ctx, req)
			results <- fetchResult{req: req, doc: doc, err: err}
		}(req)
	}

	// 等待进行中的抓取结束,结果不再交给回调
	for ; inFlight > 0; inFlight-- {
		res := <-results
		e.extractor.Fail(res.req, ErrRunAborted)
	}

	if runErr != nil && crawlers.IsFatal(runErr) {
		return fmt.Errorf("%w: %v", ErrRunAborted, runErr)
	}
	return runErr
}

// process 在唯一的回调点处理一次解析结果
// 只有需要中止整个运行的错误才会返回
func (e *CrawlEngine) process(ctx context.Context, req *models.CrawlRequest, doc *models.ResolvedDocument, err error) error {
	e.stats.Requests++
	if e.resolver.IsBrowserRouted(req) {
		e.stats.BrowserRequests++
	} else {
		e.stats.PlainRequests++
	}
	if e.OnRequest != nil {
		defer e.OnRequest(req)
	}

	if err != nil {
		if crawlers.IsFatal(err) {
			utils.Errorf("浏览器会话不可用,中止爬取 [%s]: %v", req.URL, err)
			e.recordFailure(req, "session_unusable", err)
			e.extractor.Fail(req, err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case errors.Is(err, crawlers.ErrContentTimeout):
			e.stats.Timeouts++
			e.recordFailure(req, "content_timeout", err)
		case errors.Is(err, crawlers.ErrFetchFailure):
			e.stats.FetchFailures++
			e.recordFailure(req, "fetch_failure", err)
		default:
			e.recordFailure(req, "resolve_error", err)
		}
		e.stats.FailedRequests++
		utils.Warnf("请求失败 [%s]: %v", req, err)

		e.deliver(ctx, e.extractor.FailRequest(req, err))
		return nil
	}

	result, herr := e.extractor.Handle(doc)
	if herr != nil {
		errorType := "extract_error"
		if errors.Is(herr, extract.ErrRequiredFieldMissing) {
			errorType = "field_missing"
		}
		e.recordFailure(req, errorType, herr)
		utils.Debugf("提取失败 [%s]: %v", req.URL, herr)
	}

	e.deliver(ctx, result)
	return nil
}

// deliver 入队后续请求并保存完成的实体
func (e *CrawlEngine) deliver(ctx context.Context, result extract.Result) {
	for _, next := range result.Requests {
		added, err := e.queue.Push(next)
		if err != nil {
			utils.Warnf("后续请求无效 [%s]: %v", next.URL, err)
			e.recordFailure(next, "invalid_request", err)
			e.extractor.Fail(next, err)
			continue
		}
		if !added {
			utils.Debugf("请求已调度过,跳过: %s", next.URL)
		}
	}

	for _, review := range result.Entities {
		if err := e.sink.Save(ctx, review); err != nil {
			e.stats.StoreFailures++
			e.recordFailure(models.NewCrawlRequest(review.URL, "", models.TagNone), "store_failure", err)
			utils.Errorf("保存评测失败 [%s]: %v", review.URL, err)
			continue
		}
		e.emitted = append(e.emitted, models.EntityInfo{
			ID:    review.ID,
			URL:   review.URL,
			Title: review.Title,
			Score: review.Score,
		})
		utils.Infof("评测已保存: %s (%.1f)", review.Title, review.Score)
	}
}

// recordFailure 记录失败的提取链
func (e *CrawlEngine) recordFailure(req *models.CrawlRequest, errorType string, err error) {
	e.failed = append(e.failed, models.FailedChainInfo{
		URL:       req.URL,
		ErrorType: errorType,
		ErrorMsg:  err.Error(),
	})
}

// finish 丢弃剩余实体并汇总统计
func (e *CrawlEngine) finish(startTime time.Time) {
	for _, entity := range e.extractor.Sweep() {
		e.failed = append(e.failed, models.FailedChainInfo{
			URL:       entity.Key,
			ErrorType: "incomplete",
			ErrorMsg:  fmt.Sprintf("运行结束时实体仍未完成: %s", entity.Source),
		})
	}
	e.queue.Reset()

	extracted := e.extractor.Stats()
	e.stats.ListingPages = extracted.ListingPages
	e.stats.Discarded = extracted.Discarded
	e.stats.Emitted = len(e.emitted)
	e.stats.Duration = time.Since(startTime).Seconds()
}

// Stats 运行统计
func (e *CrawlEngine) Stats() models.TaskStats {
	return e.stats
}

// Emitted 已保存的实体
func (e *CrawlEngine) Emitted() []models.EntityInfo {
	return e.emitted
}

// Failed 失败的提取链
func (e *CrawlEngine) Failed() []models.FailedChainInfo {
	return e.failed
}
