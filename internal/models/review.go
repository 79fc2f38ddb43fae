package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Review 评测记录
type Review struct {
	// 标识信息
	ID    string `json:"id"`    // 记录唯一ID
	Title string `json:"title"` // 标题
	URL   string `json:"url"`   // 评测页面URL

	// 分类信息
	Tags      []string `json:"tags"`      // 分类标签(如 Action)
	Platforms []string `json:"platforms"` // 平台/类别
	Reviewer  string   `json:"reviewer"`  // 评测者

	// 评分信息
	Score       float64   `json:"score"`        // 评分
	PublishedAt time.Time `json:"published_at"` // 发布时间

	// 正文
	Summary string `json:"summary"`
	Pros    string `json:"pros"`
	Cons    string `json:"cons"`

	// 时间戳
	CrawledAt time.Time `json:"crawled_at"`
}

// NewReview 创建待填充的评测记录
func NewReview(rawURL string) *Review {
	return &Review{
		ID:        generateID(),
		URL:       rawURL,
		Tags:      make([]string, 0),
		Platforms: make([]string, 0),
	}
}

// Validate 验证完成态记录
func (r *Review) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("评测URL不能为空")
	}
	if len(r.Platforms) == 0 {
		return fmt.Errorf("至少需要一个平台: %s", r.URL)
	}
	if r.Score < 0 {
		return fmt.Errorf("评分无效: %.2f", r.Score)
	}
	return nil
}

// ToJSON 序列化为JSON
func (r *Review) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
