package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 任务信息
	TaskID    string     `json:"task_id"`
	SourceURL string     `json:"source_url"`
	Domain    string     `json:"domain"`
	Status    TaskStatus `json:"status"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats TaskStats `json:"stats"`

	// 实体列表
	Emitted []EntityInfo      `json:"emitted"` // 已输出的实体
	Failed  []FailedChainInfo `json:"failed"`  // 失败的提取链

	ErrorMessage string `json:"error_message,omitempty"`
}

// EntityInfo 已输出实体概要
type EntityInfo struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// FailedChainInfo 失败链信息
type FailedChainInfo struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // content_timeout, field_missing, fetch_failure等
	ErrorMsg  string `json:"error_msg"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
