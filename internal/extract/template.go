package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// ListingItem 列表页中的一个实体链接及其预填字段
type ListingItem struct {
	URL      string
	Title    string
	Reviewer string
}

// Template 站点相关的提取规则
type Template interface {
	// ExtractListingURLs 纯函数: 从列表文档中提取实体链接(按出现顺序,已去重)
	ExtractListingURLs(doc *Document) []ListingItem
	// ExtractHop1 填充评测页字段并返回第二跳URL
	// 必需字段缺失时返回ErrRequiredFieldMissing
	ExtractHop1(doc *Document, review *models.Review) (string, error)
	// ExtractHop2 填充分类标签
	ExtractHop2(doc *Document, review *models.Review) error
	// HasNextListingPage 列表页是否还能继续加载
	HasNextListingPage(doc *Document) bool
}

// Selectors 评测站点的CSS选择器
type Selectors struct {
	ListingItem  string `mapstructure:"listing_item"`  // 列表中的每个条目
	ListingLink  string `mapstructure:"listing_link"`  // 条目内的链接(为空时条目本身带href)
	ListingTitle string `mapstructure:"listing_title"` // 条目内的标题
	LoadMore     string `mapstructure:"load_more"`     // "加载更多"锚点

	Title       string `mapstructure:"title"`
	Platforms   string `mapstructure:"platforms"`
	Score       string `mapstructure:"score"`
	Reviewer    string `mapstructure:"reviewer"`
	PublishedAt string `mapstructure:"published_at"`
	Summary     string `mapstructure:"summary"`
	Pros        string `mapstructure:"pros"`
	Cons        string `mapstructure:"cons"`
	Hop2Link    string `mapstructure:"hop2_link"` // 指向分类页的链接

	Tags string `mapstructure:"tags"` // 分类页中的标签
}

// TemplateConfig 选择器驱动模板的配置
type TemplateConfig struct {
	Selectors   Selectors
	DateLayouts []string
	ScoreMin    float64
	ScoreMax    float64
}

// SiteTemplate 选择器驱动的评测站点模板
type SiteTemplate struct {
	config TemplateConfig
}

// NewSiteTemplate 创建模板,校验必需选择器
func NewSiteTemplate(config TemplateConfig) (*SiteTemplate, error) {
	sel := config.Selectors

	required := map[string]string{
		"listing_item": sel.ListingItem,
		"platforms":    sel.Platforms,
		"score":        sel.Score,
		"hop2_link":    sel.Hop2Link,
		"tags":         sel.Tags,
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("缺少必需的选择器: %s", strings.Join(missing, ", "))
	}

	if config.ScoreMax <= config.ScoreMin {
		return nil, fmt.Errorf("评分范围无效: [%v, %v]", config.ScoreMin, config.ScoreMax)
	}
	if len(config.DateLayouts) == 0 {
		config.DateLayouts = DefaultDateLayouts
	}

	return &SiteTemplate{config: config}, nil
}

// ExtractListingURLs 提取列表条目
func (t *SiteTemplate) ExtractListingURLs(doc *Document) []ListingItem {
	sel := t.config.Selectors
	seen := make(map[string]bool)
	var items []ListingItem

	doc.Find(sel.ListingItem).Each(func(_ int, s *goquery.Selection) {
		link := s
		if sel.ListingLink != "" {
			link = s.Find(sel.ListingLink).First()
		}

		href, ok := link.Attr("href")
		if !ok {
			return
		}
		abs, ok := doc.Resolve(href)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true

		item := ListingItem{URL: abs}
		if sel.ListingTitle != "" {
			item.Title = selectionText(s.Find(sel.ListingTitle).First())
		} else {
			item.Title = selectionText(link)
		}
		items = append(items, item)
	})

	return items
}

// ExtractHop1 评测页: 平台和评分为必需字段
func (t *SiteTemplate) ExtractHop1(doc *Document, review *models.Review) (string, error) {
	sel := t.config.Selectors

	platforms := SplitList(doc.Texts(sel.Platforms))
	if len(platforms) == 0 {
		return "", fmt.Errorf("%w: 平台", ErrRequiredFieldMissing)
	}

	score, err := ParseScore(doc.Text(sel.Score), t.config.ScoreMin, t.config.ScoreMax)
	if err != nil {
		return "", err
	}

	if sel.PublishedAt != "" {
		raw := doc.Text(sel.PublishedAt)
		if dt, ok := doc.Find(sel.PublishedAt).First().Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			raw = dt
		}
		published, err := ParseDate(raw, t.config.DateLayouts)
		if err != nil {
			return "", err
		}
		review.PublishedAt = published
	}

	hop2, ok := doc.Link(sel.Hop2Link)
	if !ok {
		return "", fmt.Errorf("%w: 分类页链接", ErrRequiredFieldMissing)
	}

	review.Platforms = platforms
	review.Score = score
	if title := t.optional(doc, sel.Title); title != "" {
		review.Title = title
	}
	if reviewer := t.optional(doc, sel.Reviewer); reviewer != "" {
		review.Reviewer = reviewer
	}
	review.Summary = t.optional(doc, sel.Summary)
	review.Pros = t.optional(doc, sel.Pros)
	review.Cons = t.optional(doc, sel.Cons)

	return hop2, nil
}

// ExtractHop2 分类页: 填充标签
func (t *SiteTemplate) ExtractHop2(doc *Document, review *models.Review) error {
	tags := SplitList(doc.Texts(t.config.Selectors.Tags))
	if len(tags) == 0 {
		return fmt.Errorf("%w: 分类标签", ErrRequiredFieldMissing)
	}
	review.Tags = tags
	return nil
}

// HasNextListingPage 存在"加载更多"锚点时可以继续
func (t *SiteTemplate) HasNextListingPage(doc *Document) bool {
	if t.config.Selectors.LoadMore == "" {
		return false
	}
	return doc.Exists(t.config.Selectors.LoadMore)
}

// optional 可选字段,选择器为空时返回空字符串
func (t *SiteTemplate) optional(doc *Document, selector string) string {
	if selector == "" {
		return ""
	}
	return doc.Text(selector)
}
