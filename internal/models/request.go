package models

import (
	"fmt"
)

// AdapterTag 请求声明的浏览器适配器标识
// 空标识表示走普通HTTP抓取路径
type AdapterTag string

// TagNone 不需要浏览器交互
const TagNone AdapterTag = ""

// 元数据键
const (
	// MetaEntityKey 多跳提取的关联键(待完成实体的URL)
	MetaEntityKey = "entity_key"
	// MetaSource 请求所属的列表源
	MetaSource = "source"
	// MetaListingPage 列表页序号(第几次滚动)
	MetaListingPage = "listing_page"
)

// CrawlRequest 爬取请求
type CrawlRequest struct {
	URL          string         // 目标URL
	Callback     string         // 响应到达后调用的回调名称
	Adapter      AdapterTag     // 必须使用的适配器(可选)
	Meta         map[string]any // 原样传递给回调的元数据
	Continuation bool           // 是否为后续请求(下一页/下一跳)
	Priority     int            // 优先级(仅在配置了优先级规则时生效)
}

// NewCrawlRequest 创建请求
func NewCrawlRequest(rawURL, callback string, adapter AdapterTag) *CrawlRequest {
	return &CrawlRequest{
		URL:      rawURL,
		Callback: callback,
		Adapter:  adapter,
		Meta:     make(map[string]any),
	}
}

// WithMeta 设置元数据并返回请求本身
func (r *CrawlRequest) WithMeta(key string, value any) *CrawlRequest {
	if r.Meta == nil {
		r.Meta = make(map[string]any)
	}
	r.Meta[key] = value
	return r
}

// MetaString 读取字符串类型的元数据
func (r *CrawlRequest) MetaString(key string) (string, bool) {
	if r == nil || r.Meta == nil {
		return "", false
	}
	v, ok := r.Meta[key].(string)
	return v, ok
}

// MetaInt 读取整数类型的元数据
func (r *CrawlRequest) MetaInt(key string) (int, bool) {
	if r == nil || r.Meta == nil {
		return 0, false
	}
	v, ok := r.Meta[key].(int)
	return v, ok
}

// IsBrowserRouted 是否需要浏览器会话
func (r *CrawlRequest) IsBrowserRouted() bool {
	return r.Adapter != TagNone
}

// String 便于日志输出
func (r *CrawlRequest) String() string {
	if r.Adapter == TagNone {
		return fmt.Sprintf("%s -> %s", r.URL, r.Callback)
	}
	return fmt.Sprintf("%s -> %s [%s]", r.URL, r.Callback, r.Adapter)
}

// ResolvedDocument 已解析的文档
// 创建后不可修改,只能通过访问方法读取
type ResolvedDocument struct {
	request  *CrawlRequest
	content  string
	finalURL string
}

// NewResolvedDocument 创建文档
// finalURL为空时使用请求URL
func NewResolvedDocument(req *CrawlRequest, content string, finalURL string) *ResolvedDocument {
	if finalURL == "" && req != nil {
		finalURL = req.URL
	}
	return &ResolvedDocument{
		request:  req,
		content:  content,
		finalURL: finalURL,
	}
}

// Request 返回对应的请求
func (d *ResolvedDocument) Request() *CrawlRequest {
	return d.request
}

// Content 返回渲染后的内容
func (d *ResolvedDocument) Content() string {
	return d.content
}

// FinalURL 返回最终URL(客户端跳转后可能与请求URL不同)
func (d *ResolvedDocument) FinalURL() string {
	return d.finalURL
}
