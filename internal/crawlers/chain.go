package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// Fetcher 普通HTTP抓取路径(不执行脚本)
type Fetcher interface {
	Fetch(ctx context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error)
}

// AdapterChain 适配器链
// 按固定顺序检查适配器,第一个认领请求的适配器负责解析;
// 未声明适配器的请求交给普通抓取路径
type AdapterChain struct {
	adapters []Adapter
	session  *BrowserSession
	fetcher  Fetcher

	// 浏览器交互互斥锁: 同一时刻只允许一次会话交互
	browserMu sync.Mutex
}

// NewAdapterChain 创建适配器链,适配器标识必须互不相同
func NewAdapterChain(session *BrowserSession, fetcher Fetcher, adapters ...Adapter) (*AdapterChain, error) {
	seen := make(map[models.AdapterTag]bool, len(adapters))
	for _, a := range adapters {
		tag := a.Tag()
		if tag == models.TagNone {
			return nil, fmt.Errorf("适配器标识不能为空")
		}
		if seen[tag] {
			return nil, fmt.Errorf("适配器标识重复: %s", tag)
		}
		seen[tag] = true
	}

	if fetcher == nil {
		return nil, fmt.Errorf("未配置普通抓取路径")
	}
	if session == nil && len(adapters) > 0 {
		return nil, fmt.Errorf("存在浏览器适配器但未配置浏览器会话")
	}

	return &AdapterChain{
		adapters: adapters,
		session:  session,
		fetcher:  fetcher,
	}, nil
}

// IsBrowserRouted 请求是否需要浏览器会话
func (c *AdapterChain) IsBrowserRouted(req *models.CrawlRequest) bool {
	return req.IsBrowserRouted()
}

// Resolve 将请求解析为文档
func (c *AdapterChain) Resolve(ctx context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	if !req.IsBrowserRouted() {
		return c.fetcher.Fetch(ctx, req)
	}

	for _, a := range c.adapters {
		if !a.Claims(req) {
			continue
		}
		return c.resolveWithBrowser(ctx, a, req)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, req.Adapter)
}

// resolveWithBrowser 持有浏览器锁调用适配器
func (c *AdapterChain) resolveWithBrowser(ctx context.Context, a Adapter, req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	c.browserMu.Lock()
	defer c.browserMu.Unlock()

	if c.session.Closed() {
		return nil, ErrSessionClosed
	}

	log.Debug().Str("url", req.URL).Str("adapter", string(a.Tag())).Msg("浏览器解析请求")
	return a.Resolve(ctx, req, c.session)
}

// Reset 重置所有带状态的适配器
func (c *AdapterChain) Reset() {
	c.browserMu.Lock()
	defer c.browserMu.Unlock()

	for _, a := range c.adapters {
		if r, ok := a.(Resettable); ok {
			r.Reset()
		}
	}
}

// Adapter 按标识查找适配器
func (c *AdapterChain) Adapter(tag models.AdapterTag) (Adapter, bool) {
	for _, a := range c.adapters {
		if a.Tag() == tag {
			return a, true
		}
	}
	return nil, false
}

// Close 释放浏览器会话,会话已因失效而关闭时不报错
func (c *AdapterChain) Close() error {
	if c.session == nil {
		return nil
	}

	c.browserMu.Lock()
	defer c.browserMu.Unlock()

	if err := c.session.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}
