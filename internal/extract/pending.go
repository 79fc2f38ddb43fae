package extract

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// EntityState 实体在多跳提取中的状态
type EntityState string

const (
	StateListingScan EntityState = "LISTING_SCAN"
	StateHop1Pending EntityState = "HOP1_PENDING"
	StateHop2Pending EntityState = "HOP2_PENDING"
	StateComplete    EntityState = "COMPLETE"
	StateDiscarded   EntityState = "DISCARDED"
)

// PendingEntity 等待后续跳转补全的评测记录
type PendingEntity struct {
	Key       string         // 实体URL(关联键)
	State     EntityState    // 当前状态
	Review    *models.Review // 部分填充的记录
	Source    string         // 所属列表源
	CreatedAt time.Time
}

// PendingStore 待完成实体映射
// 每个键对应且仅对应一个进行中的多跳链,完成和丢弃时都必须移除
type PendingStore struct {
	entries map[string]*PendingEntity
	mu      sync.Mutex
}

// NewPendingStore 创建空的映射
func NewPendingStore() *PendingStore {
	return &PendingStore{
		entries: make(map[string]*PendingEntity),
	}
}

// Create 创建处于HOP1_PENDING的实体,键已存在时返回false
func (s *PendingStore) Create(key, source string, review *models.Review) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		return false
	}

	s.entries[key] = &PendingEntity{
		Key:       key,
		State:     StateHop1Pending,
		Review:    review,
		Source:    source,
		CreatedAt: time.Now(),
	}
	return true
}

// Get 查找实体
func (s *PendingStore) Get(key string) (*PendingEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entries[key]
	return entity, ok
}

// Advance 将实体从from迁移到to
func (s *PendingStore) Advance(key string, from, to EntityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("待完成实体不存在: %s", key)
	}
	if entity.State != from {
		return fmt.Errorf("实体状态不符 [%s]: 期望 %s, 实际 %s", key, from, entity.State)
	}
	entity.State = to
	return nil
}

// Complete 移除并返回已完成的实体
func (s *PendingStore) Complete(key string) (*PendingEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	entity.State = StateComplete
	return entity, true
}

// Discard 移除实体,键不存在时为空操作
// 返回是否真的移除了实体
func (s *PendingStore) Discard(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	entity.State = StateDiscarded
	return true
}

// Len 当前待完成实体数量
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys 按字典序返回所有键
func (s *PendingStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Drain 移除并返回所有剩余实体,保留其最后的状态
func (s *PendingStore) Drain() []*PendingEntity {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := make([]*PendingEntity, 0, len(s.entries))
	for key, entity := range s.entries {
		drained = append(drained, entity)
		delete(s.entries, key)
	}
	sort.Slice(drained, func(i, j int) bool { return drained[i].Key < drained[j].Key })
	return drained
}
