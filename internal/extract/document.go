package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"golang.org/x/net/html"
)

// Document 可查询的已解析文档
// 相对链接按文档的最终URL解析
type Document struct {
	*goquery.Document

	source *models.ResolvedDocument
	base   *url.URL
}

// Parse 解析ResolvedDocument的内容
func Parse(doc *models.ResolvedDocument) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档不能为空")
	}

	base, err := url.Parse(doc.FinalURL())
	if err != nil {
		return nil, fmt.Errorf("最终URL无效 [%s]: %w", doc.FinalURL(), err)
	}

	root, err := html.Parse(strings.NewReader(doc.Content()))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败 [%s]: %w", doc.FinalURL(), err)
	}

	gq := goquery.NewDocumentFromNode(root)
	gq.Url = base

	return &Document{
		Document: gq,
		source:   doc,
		base:     base,
	}, nil
}

// Source 返回原始文档
func (d *Document) Source() *models.ResolvedDocument {
	return d.source
}

// Request 返回文档对应的请求
func (d *Document) Request() *models.CrawlRequest {
	return d.source.Request()
}

// Resolve 将链接解析为绝对URL,只接受http/https
func (d *Document) Resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := d.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// Text 选择器第一个匹配元素的文本(去除首尾空白)
func (d *Document) Text(selector string) string {
	return selectionText(d.Find(selector).First())
}

// Texts 选择器所有匹配元素的文本,忽略空文本
func (d *Document) Texts(selector string) []string {
	var result []string
	d.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := selectionText(s); text != "" {
			result = append(result, text)
		}
	})
	return result
}

// Link 选择器第一个匹配元素的href(已解析为绝对URL)
func (d *Document) Link(selector string) (string, bool) {
	href, ok := d.Find(selector).First().Attr("href")
	if !ok {
		return "", false
	}
	return d.Resolve(href)
}

// Exists 选择器是否匹配任何元素
func (d *Document) Exists(selector string) bool {
	return d.Find(selector).Length() > 0
}

// selectionText 合并空白后的元素文本
func selectionText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
