package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// FetchConfig 普通抓取配置
type FetchConfig struct {
	Timeout       time.Duration // 单次请求超时
	Retries       int           // 失败后的重试次数
	RetryDelay    time.Duration // 重试基础间隔(按次数线性增加)
	RateLimit     float64       // 每秒请求数上限,0表示不限速
	Burst         int           // 令牌桶容量
	Parallelism   int           // Colly并发上限
	RespectRobots bool          // 是否遵守robots.txt
	SkipTLSVerify bool          // 跳过证书验证
}

// PlainFetcher 基于Colly的普通抓取器(不执行脚本)
// 并发安全: 每次抓取使用克隆的collector,共享底层HTTP后端
type PlainFetcher struct {
	collector      *colly.Collector
	config         FetchConfig
	limiter        *rate.Limiter
	headerProvider models.HeaderProvider
	sleep          SleepFunc
}

// NewPlainFetcher 创建普通抓取器
func NewPlainFetcher(config FetchConfig, headerProvider models.HeaderProvider) *PlainFetcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Burst < 1 {
		config.Burst = 1
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = !config.RespectRobots
	c.SetRequestTimeout(config.Timeout)

	if config.SkipTLSVerify {
		c.WithTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		})
		utils.Debugf("普通抓取: TLS证书验证已禁用")
	}

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.Parallelism,
	}); err != nil {
		utils.Warnf("设置并发限制失败: %v", err)
	}

	limiter := rate.NewLimiter(rate.Inf, config.Burst)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}

	return &PlainFetcher{
		collector:      c,
		config:         config,
		limiter:        limiter,
		headerProvider: headerProvider,
		sleep:          sleepContext,
	}
}

// Fetch 抓取请求URL,失败时按配置重试,重试耗尽返回ErrFetchFailure
func (f *PlainFetcher) Fetch(ctx context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	var lastErr error

	for attempt := 0; attempt <= f.config.Retries; attempt++ {
		if attempt > 0 {
			utils.Debugf("重试抓取 [%s] (%d/%d): %v", req.URL, attempt, f.config.Retries, lastErr)
			if err := f.sleep(ctx, f.config.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		doc, err := f.fetchOnce(req)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w [%s]: %v", ErrFetchFailure, req.URL, lastErr)
}

// fetchOnce 执行一次GET请求
func (f *PlainFetcher) fetchOnce(req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	c := f.collector.Clone()

	var (
		body     []byte
		finalURL string
		status   int
	)

	c.OnRequest(func(r *colly.Request) {
		if f.headerProvider == nil {
			return
		}
		headers, err := f.headerProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		finalURL = r.Request.URL.String()

		decoded, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s]: %v", finalURL, err)
			decoded = r.Body
		}
		body = decoded
	})

	if err := c.Visit(req.URL); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("未收到响应 (状态码 %d)", status)
	}

	return models.NewResolvedDocument(req, string(body), finalURL), nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// net/http只会自动处理gzip,br需要手动解码
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "", "identity":
		return body, nil

	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			// Transport已经解压过的情况下头部可能仍然保留
			if errors.Is(err, gzip.ErrHeader) {
				return body, nil
			}
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
