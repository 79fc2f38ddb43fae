package models

import (
	"encoding/json"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusAborted   TaskStatus = "aborted"   // 会话失效,已中止
)

// TaskStats 任务统计
type TaskStats struct {
	Requests        int     `json:"requests"`         // 已处理请求数
	BrowserRequests int     `json:"browser_requests"` // 浏览器请求数
	PlainRequests   int     `json:"plain_requests"`   // 普通HTTP请求数
	ListingPages    int     `json:"listing_pages"`    // 列表页数
	Emitted         int     `json:"emitted"`          // 已完成并输出的实体数
	Discarded       int     `json:"discarded"`        // 丢弃的实体数
	FailedRequests  int     `json:"failed_requests"`  // 失败请求数
	Timeouts        int     `json:"timeouts"`         // 内容等待超时次数
	FetchFailures   int     `json:"fetch_failures"`   // 普通抓取失败次数
	StoreFailures   int     `json:"store_failures"`   // 持久化失败次数
	Duration        float64 `json:"duration"`         // 总耗时(秒)
}

// Add 累加另一份统计
func (s *TaskStats) Add(other TaskStats) {
	s.Requests += other.Requests
	s.BrowserRequests += other.BrowserRequests
	s.PlainRequests += other.PlainRequests
	s.ListingPages += other.ListingPages
	s.Emitted += other.Emitted
	s.Discarded += other.Discarded
	s.FailedRequests += other.FailedRequests
	s.Timeouts += other.Timeouts
	s.FetchFailures += other.FetchFailures
	s.StoreFailures += other.StoreFailures
	s.Duration += other.Duration
}

// CrawlTask 单个列表源的爬取任务
type CrawlTask struct {
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	SourceURL   string     `json:"source_url"`             // 列表源URL
	Domain      string     `json:"domain"`                 // 解析的域名
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	Status TaskStatus `json:"status"` // 任务状态
	Stats  TaskStats  `json:"stats"`  // 任务统计

	ErrorMessage string `json:"error_message,omitempty"` // 错误消息
}

// NewCrawlTask 创建新任务
func NewCrawlTask(sourceURL string) (*CrawlTask, error) {
	host, err := HostOf(sourceURL)
	if err != nil {
		return nil, err
	}

	return &CrawlTask{
		ID:        generateID(),
		SourceURL: sourceURL,
		Domain:    host,
		CreatedAt: time.Now(),
		Status:    TaskStatusPending,
	}, nil
}

// Finish 结束任务
func (t *CrawlTask) Finish(status TaskStatus, err error) {
	now := time.Now()
	t.CompletedAt = &now
	t.Status = status
	if err != nil {
		t.ErrorMessage = err.Error()
	}
}

// ToJSON 序列化为JSON
func (t *CrawlTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
