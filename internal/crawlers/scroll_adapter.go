package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// ScrollAdapterConfig 滚动分页适配器配置
type ScrollAdapterConfig struct {
	Tag models.AdapterTag

	// InitialMarker 首次加载完成的标记选择器
	InitialMarker string
	// LoadMoreSelector "加载更多"锚点选择器
	LoadMoreSelector string
	// OrdinalSelector 带分页序号的元素选择器
	OrdinalSelector string
	// OrdinalAttr 分页序号所在属性,为空时读取元素文本
	OrdinalAttr string
	// OrdinalMarker 指定序号的标记选择器模板,包含一个%d
	OrdinalMarker string
	// WaitTimeout 等待标记出现的超时
	WaitTimeout time.Duration
}

// ScrollState 滚动适配器的交互历史
type ScrollState struct {
	Initialized bool   // 是否已完成首次导航
	LastOrdinal int    // 最近一次观察到的分页序号
	ListingURL  string // 首次导航后的列表地址
}

// ScrollAdapter 滚动分页适配器
// 首次调用导航并等待初始标记,之后在页面内滚动触发加载
// 会话被其他请求导航离开时,回到列表地址并重放滚动到LastOrdinal
type ScrollAdapter struct {
	config ScrollAdapterConfig
	state  ScrollState
}

// NewScrollAdapter 创建滚动分页适配器
func NewScrollAdapter(config ScrollAdapterConfig) (*ScrollAdapter, error) {
	if config.Tag == models.TagNone {
		return nil, fmt.Errorf("适配器标识不能为空")
	}
	if config.InitialMarker == "" || config.LoadMoreSelector == "" || config.OrdinalSelector == "" {
		return nil, fmt.Errorf("滚动适配器缺少标记选择器配置")
	}
	if strings.Count(config.OrdinalMarker, "%d") != 1 {
		return nil, fmt.Errorf("分页标记模板必须包含且仅包含一个%%d: %q", config.OrdinalMarker)
	}
	if config.WaitTimeout <= 0 {
		return nil, fmt.Errorf("等待超时必须大于0")
	}

	return &ScrollAdapter{config: config}, nil
}

// Tag 适配器标识
func (a *ScrollAdapter) Tag() models.AdapterTag {
	return a.config.Tag
}

// Claims 是否认领请求
func (a *ScrollAdapter) Claims(req *models.CrawlRequest) bool {
	return claims(a.config.Tag, req)
}

// State 返回当前交互状态
func (a *ScrollAdapter) State() ScrollState {
	return a.state
}

// Reset 切换到新的列表源前清空状态
func (a *ScrollAdapter) Reset() {
	a.state = ScrollState{}
}

// Resolve 执行首次加载或下一次滚动
func (a *ScrollAdapter) Resolve(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error) {
	if !a.Claims(req) {
		return nil, ErrNotClaimed
	}

	if !a.state.Initialized {
		return a.firstLoad(ctx, req, session)
	}
	return a.loadMore(ctx, req, session)
}

// firstLoad 导航并等待初始内容
func (a *ScrollAdapter) firstLoad(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error) {
	if err := session.Navigate(ctx, req.URL); err != nil {
		return nil, err
	}

	if err := session.WaitFor(ctx, a.config.InitialMarker, a.config.WaitTimeout); err != nil {
		return nil, a.wrapWait(err, "初始内容未出现")
	}

	doc, err := snapshot(ctx, req, session)
	if err != nil {
		return nil, err
	}

	ordinal, _ := a.ExtractOrdinal(doc.Content())
	a.state = ScrollState{Initialized: true, LastOrdinal: ordinal, ListingURL: doc.FinalURL()}

	log.Debug().Str("url", req.URL).Int("ordinal", ordinal).Msg("列表首屏加载完成")
	return doc, nil
}

// loadMore 滚动"加载更多"锚点并等待 previous+1 的标记
func (a *ScrollAdapter) loadMore(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error) {
	current, err := session.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	if current != a.state.ListingURL {
		if err := a.restoreListing(ctx, session); err != nil {
			return nil, err
		}
	}

	content, err := session.CurrentContent(ctx)
	if err != nil {
		return nil, err
	}

	previous, ok := a.ExtractOrdinal(content)
	if !ok {
		previous = a.state.LastOrdinal
	}
	next := previous + 1

	if err := session.ScrollIntoView(ctx, a.config.LoadMoreSelector, a.config.WaitTimeout); err != nil {
		return nil, a.wrapWait(err, "加载更多锚点不可用")
	}

	marker := a.MarkerFor(next)
	if err := session.WaitFor(ctx, marker, a.config.WaitTimeout); err != nil {
		return nil, a.wrapWait(err, fmt.Sprintf("第%d页内容未出现", next))
	}

	doc, err := snapshot(ctx, req, session)
	if err != nil {
		return nil, err
	}

	a.state.LastOrdinal = next

	log.Debug().Int("previous", previous).Int("next", next).Msg("列表滚动加载完成")
	return doc, nil
}

// restoreListing 重新打开列表页并滚动到上次观察到的序号
func (a *ScrollAdapter) restoreListing(ctx context.Context, session *BrowserSession) error {
	log.Debug().Str("url", a.state.ListingURL).Int("ordinal", a.state.LastOrdinal).Msg("会话已离开列表页,重新加载")

	if err := session.Navigate(ctx, a.state.ListingURL); err != nil {
		return err
	}
	if err := session.WaitFor(ctx, a.config.InitialMarker, a.config.WaitTimeout); err != nil {
		return a.wrapWait(err, "重新加载列表页失败")
	}

	content, err := session.CurrentContent(ctx)
	if err != nil {
		return err
	}
	ordinal, _ := a.ExtractOrdinal(content)

	for ordinal < a.state.LastOrdinal {
		if err := session.ScrollIntoView(ctx, a.config.LoadMoreSelector, a.config.WaitTimeout); err != nil {
			return a.wrapWait(err, "加载更多锚点不可用")
		}
		if err := session.WaitFor(ctx, a.MarkerFor(ordinal+1), a.config.WaitTimeout); err != nil {
			return a.wrapWait(err, fmt.Sprintf("重放第%d页失败", ordinal+1))
		}
		ordinal++
	}
	return nil
}

// MarkerFor 返回指定序号的标记选择器
func (a *ScrollAdapter) MarkerFor(ordinal int) string {
	return fmt.Sprintf(a.config.OrdinalMarker, ordinal)
}

// ExtractOrdinal 从文档中读取最大的分页序号
func (a *ScrollAdapter) ExtractOrdinal(content string) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return 0, false
	}

	found := false
	maxOrdinal := 0
	doc.Find(a.config.OrdinalSelector).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if a.config.OrdinalAttr != "" {
			raw, _ = s.Attr(a.config.OrdinalAttr)
		}

		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return
		}
		if !found || n > maxOrdinal {
			maxOrdinal = n
			found = true
		}
	})

	return maxOrdinal, found
}

// wrapWait 为超时错误补充上下文,其他错误原样返回
func (a *ScrollAdapter) wrapWait(err error, reason string) error {
	if errors.Is(err, ErrContentTimeout) {
		return fmt.Errorf("%s: %w", reason, err)
	}
	return err
}
