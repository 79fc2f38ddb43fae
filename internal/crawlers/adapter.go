package crawlers

import (
	"context"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// Adapter 浏览器自动化适配器
// 按请求声明的标识选择,不根据响应内容判断
type Adapter interface {
	// Tag 适配器标识
	Tag() models.AdapterTag
	// Claims 请求的适配器标识与本适配器完全一致时返回true
	Claims(req *models.CrawlRequest) bool
	// Resolve 执行所需的浏览器交互并返回最终状态的文档
	// Claims为false时不得调用
	Resolve(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error)
}

// Resettable 带状态的适配器在切换列表源时重置状态
type Resettable interface {
	Reset()
}

// claims 通用的标识匹配
func claims(tag models.AdapterTag, req *models.CrawlRequest) bool {
	return req != nil && tag != models.TagNone && req.Adapter == tag
}

// snapshot 读取会话当前状态并生成文档
func snapshot(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error) {
	content, err := session.CurrentContent(ctx)
	if err != nil {
		return nil, err
	}

	finalURL, err := session.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}

	return models.NewResolvedDocument(req, content, finalURL), nil
}
