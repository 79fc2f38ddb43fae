package crawlers

import (
	"container/heap"
	"fmt"
	"net/url"
	"sync"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// QueueMode 队列调度策略
type QueueMode string

const (
	// QueueFIFO 严格按入队顺序
	QueueFIFO QueueMode = "fifo"
	// QueueContinuationFirst 续页请求优先,其余按入队顺序
	QueueContinuationFirst QueueMode = "continuation_first"
)

// queueItem 堆元素
type queueItem struct {
	req      *models.CrawlRequest
	priority int
	seq      uint64
}

// requestHeap 按priority降序、seq升序排列
type requestHeap []queueItem

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// RequestQueue 待处理请求队列
// 职责: 按调度策略排序请求,对非续页请求按URL+适配器去重
type RequestQueue struct {
	items requestHeap
	seen  map[string]bool
	mode  QueueMode
	seq   uint64
	mu    sync.Mutex
}

// NewRequestQueue 创建请求队列
func NewRequestQueue(mode QueueMode) *RequestQueue {
	if mode == "" {
		mode = QueueFIFO
	}
	return &RequestQueue{
		seen: make(map[string]bool),
		mode: mode,
	}
}

// Push 添加请求,重复的请求返回false
// 续页请求使用相同URL,不参与去重
func (q *RequestQueue) Push(req *models.CrawlRequest) (bool, error) {
	if req == nil {
		return false, fmt.Errorf("请求不能为空")
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return false, fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, fmt.Errorf("不支持的协议: %s", parsed.Scheme)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !req.Continuation {
		key := dedupeKey(req)
		if q.seen[key] {
			return false, nil
		}
		q.seen[key] = true
	}

	priority := req.Priority
	if q.mode == QueueContinuationFirst && req.Continuation {
		priority++
	}

	q.seq++
	heap.Push(&q.items, queueItem{req: req, priority: priority, seq: q.seq})
	return true, nil
}

// Pop 取出下一个请求,队列为空时返回false
func (q *RequestQueue) Pop() (*models.CrawlRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(queueItem)
	return item.req, true
}

// Len 当前待处理请求数量
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset 清空队列和去重记录
func (q *RequestQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.seen = make(map[string]bool)
	q.seq = 0
}

// dedupeKey 去重键
func dedupeKey(req *models.CrawlRequest) string {
	return string(req.Adapter) + "|" + req.Callback + "|" + req.URL
}
