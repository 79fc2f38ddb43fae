package extract

import (
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// 回调名称
const (
	CallbackListing = "parse_listing"
	CallbackReview  = "parse_review"
	CallbackGenres  = "parse_genres"
)

// MetaSourceKey 请求所属列表源
const MetaSourceKey = models.MetaSource

// Hop2Policy 第二跳失败时的处理策略
type Hop2Policy string

const (
	// Hop2Keep 保留实体,标签为空
	Hop2Keep Hop2Policy = "keep"
	// Hop2Discard 丢弃实体
	Hop2Discard Hop2Policy = "discard"
)

// ErrUnknownCallback 请求绑定的回调不存在
var ErrUnknownCallback = errors.New("未知的回调")

// Config 提取器配置
type Config struct {
	ListingTag      models.AdapterTag // 列表页(滚动分页)
	ReviewTag       models.AdapterTag // 第一跳: 评测页
	GenreTag        models.AdapterTag // 第二跳: 分类页,为空时走普通抓取
	Hop2Failure     Hop2Policy
	MaxListingPages int // 0表示不限制
}

// Stats 提取统计
type Stats struct {
	ListingPages int // 已处理的列表页
	Created      int // 创建的待完成实体
	Skipped      int // 之前步骤已调度过的列表条目
	Emitted      int // 完成并输出的实体
	Discarded    int // 丢弃的实体
}

// Result 回调的产出
type Result struct {
	Requests []*models.CrawlRequest
	Entities []*models.Review
}

// Extractor 多跳提取状态机
// 只能由引擎的单一回调点调用
type Extractor struct {
	template Template
	config   Config
	pending  *PendingStore

	// 已调度过的列表条目,滚动后整页内容会重复返回
	scheduled map[string]bool
	stats     Stats
}

// NewExtractor 创建提取器
func NewExtractor(template Template, config Config) (*Extractor, error) {
	if template == nil {
		return nil, fmt.Errorf("提取模板不能为空")
	}
	if config.ListingTag == models.TagNone {
		return nil, fmt.Errorf("列表页必须声明适配器标识")
	}
	switch config.Hop2Failure {
	case "":
		config.Hop2Failure = Hop2Keep
	case Hop2Keep, Hop2Discard:
	default:
		return nil, fmt.Errorf("无效的第二跳失败策略: %s", config.Hop2Failure)
	}

	return &Extractor{
		template:  template,
		config:    config,
		pending:   NewPendingStore(),
		scheduled: make(map[string]bool),
	}, nil
}

// Seed 返回列表源的首个请求
func (e *Extractor) Seed(sourceURL string) *models.CrawlRequest {
	return models.NewCrawlRequest(sourceURL, CallbackListing, e.config.ListingTag).
		WithMeta(MetaSourceKey, sourceURL).
		WithMeta(models.MetaListingPage, 1)
}

// Handle 调用请求绑定的回调
func (e *Extractor) Handle(resolved *models.ResolvedDocument) (Result, error) {
	req := resolved.Request()

	switch req.Callback {
	case CallbackListing:
		return e.ParseListing(resolved)
	case CallbackReview:
		return e.ParseReview(resolved)
	case CallbackGenres:
		return e.ParseGenres(resolved)
	default:
		e.Fail(req, ErrUnknownCallback)
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCallback, req.Callback)
	}
}

// ParseListing 列表页: 每个新条目创建一个待完成实体并发出第一跳请求
func (e *Extractor) ParseListing(resolved *models.ResolvedDocument) (Result, error) {
	doc, err := Parse(resolved)
	if err != nil {
		return Result{}, err
	}

	req := resolved.Request()
	source, _ := req.MetaString(MetaSourceKey)
	if source == "" {
		source = req.URL
	}
	page, ok := req.MetaInt(models.MetaListingPage)
	if !ok {
		page = 1
	}

	e.stats.ListingPages++

	var result Result
	fresh := 0
	for _, item := range e.template.ExtractListingURLs(doc) {
		if e.scheduled[item.URL] {
			e.stats.Skipped++
			continue
		}
		e.scheduled[item.URL] = true

		review := models.NewReview(item.URL)
		review.Title = item.Title
		review.Reviewer = item.Reviewer

		if !e.pending.Create(item.URL, source, review) {
			e.stats.Skipped++
			continue
		}
		e.stats.Created++
		fresh++

		hop1 := models.NewCrawlRequest(item.URL, CallbackReview, e.config.ReviewTag).
			WithMeta(models.MetaEntityKey, item.URL).
			WithMeta(MetaSourceKey, source)
		hop1.Continuation = true
		result.Requests = append(result.Requests, hop1)
	}

	log.Debug().Str("source", source).Int("page", page).Int("new", fresh).Msg("列表页解析完成")

	// 滚动后没有新条目时停止,避免"加载更多"锚点一直存在导致死循环
	if page > 1 && fresh == 0 {
		log.Info().Str("source", source).Int("page", page).Msg("列表页无新条目,停止翻页")
		return result, nil
	}

	if next := e.RequestNextListingPage(doc, page); next != nil {
		result.Requests = append(result.Requests, next)
	}
	return result, nil
}

// RequestNextListingPage 返回下一次滚动的请求,无法继续时返回nil
func (e *Extractor) RequestNextListingPage(doc *Document, page int) *models.CrawlRequest {
	if e.config.MaxListingPages > 0 && page >= e.config.MaxListingPages {
		return nil
	}
	if !e.template.HasNextListingPage(doc) {
		return nil
	}

	req := doc.Request()
	source, _ := req.MetaString(MetaSourceKey)
	if source == "" {
		source = req.URL
	}

	next := models.NewCrawlRequest(req.URL, CallbackListing, e.config.ListingTag).
		WithMeta(MetaSourceKey, source).
		WithMeta(models.MetaListingPage, page+1)
	next.Continuation = true
	return next
}

// ParseReview 第一跳: 平台或评分缺失时丢弃实体
func (e *Extractor) ParseReview(resolved *models.ResolvedDocument) (Result, error) {
	req := resolved.Request()
	entity, err := e.lookup(req, StateHop1Pending)
	if err != nil {
		return Result{}, err
	}

	doc, err := Parse(resolved)
	if err != nil {
		e.Fail(req, err)
		return Result{}, err
	}

	hop2URL, err := e.template.ExtractHop1(doc, entity.Review)
	if err != nil {
		e.Fail(req, err)
		return Result{}, err
	}

	if err := e.pending.Advance(entity.Key, StateHop1Pending, StateHop2Pending); err != nil {
		return Result{}, err
	}

	hop2 := models.NewCrawlRequest(hop2URL, CallbackGenres, e.config.GenreTag).
		WithMeta(models.MetaEntityKey, entity.Key).
		WithMeta(MetaSourceKey, entity.Source)
	hop2.Continuation = true

	return Result{Requests: []*models.CrawlRequest{hop2}}, nil
}

// ParseGenres 第二跳: 按元数据中的关联键查找实体,填充标签后输出
func (e *Extractor) ParseGenres(resolved *models.ResolvedDocument) (Result, error) {
	req := resolved.Request()
	entity, err := e.lookup(req, StateHop2Pending)
	if err != nil {
		return Result{}, err
	}

	hopErr := e.fillHop2(resolved, entity.Review)
	if hopErr != nil {
		if e.config.Hop2Failure == Hop2Discard {
			e.Fail(req, hopErr)
			return Result{}, hopErr
		}
		log.Warn().Err(hopErr).Str("url", entity.Key).Msg("分类页提取失败,保留实体")
	}

	return e.emit(req, entity)
}

// emit 校验并输出实体,从待完成映射中移除
func (e *Extractor) emit(req *models.CrawlRequest, entity *PendingEntity) (Result, error) {
	if err := entity.Review.Validate(); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrRequiredFieldMissing, err)
		e.Fail(req, wrapped)
		return Result{}, wrapped
	}

	completed, ok := e.pending.Complete(entity.Key)
	if !ok {
		return Result{}, fmt.Errorf("待完成实体不存在: %s", entity.Key)
	}
	completed.Review.CrawledAt = time.Now()
	e.stats.Emitted++

	log.Debug().Str("url", completed.Key).Strs("tags", completed.Review.Tags).Msg("实体提取完成")
	return Result{Entities: []*models.Review{completed.Review}}, nil
}

// fillHop2 解析分类页并填充标签
func (e *Extractor) fillHop2(resolved *models.ResolvedDocument, review *models.Review) error {
	doc, err := Parse(resolved)
	if err != nil {
		return err
	}
	return e.template.ExtractHop2(doc, review)
}

// lookup 按关联键查找处于指定状态的实体
func (e *Extractor) lookup(req *models.CrawlRequest, state EntityState) (*PendingEntity, error) {
	key, ok := req.MetaString(models.MetaEntityKey)
	if !ok || key == "" {
		return nil, fmt.Errorf("请求缺少关联键: %s", req.URL)
	}

	entity, ok := e.pending.Get(key)
	if !ok {
		return nil, fmt.Errorf("待完成实体不存在(可能已被丢弃): %s", key)
	}
	if entity.State != state {
		return nil, fmt.Errorf("实体状态不符 [%s]: 期望 %s, 实际 %s", key, state, entity.State)
	}
	return entity, nil
}

// Fail 请求链失败时丢弃对应的实体,重复调用为空操作
// 返回是否真的丢弃了实体
func (e *Extractor) Fail(req *models.CrawlRequest, cause error) bool {
	key, ok := req.MetaString(models.MetaEntityKey)
	if !ok || key == "" {
		return false
	}

	if !e.pending.Discard(key) {
		return false
	}
	e.stats.Discarded++

	log.Info().Str("url", key).Err(cause).Msg("丢弃实体")
	return true
}

// FailRequest 请求本身失败(内容超时或抓取失败)时调用
// 第二跳请求按失败策略处理: keep时输出已有字段,discard时丢弃
func (e *Extractor) FailRequest(req *models.CrawlRequest, cause error) Result {
	if req.Callback == CallbackGenres && e.config.Hop2Failure == Hop2Keep {
		if entity, err := e.lookup(req, StateHop2Pending); err == nil {
			log.Warn().Err(cause).Str("url", entity.Key).Msg("分类页请求失败,保留实体")
			result, _ := e.emit(req, entity)
			return result
		}
	}

	e.Fail(req, cause)
	return Result{}
}

// Sweep 丢弃运行结束时仍未完成的所有实体
func (e *Extractor) Sweep() []*PendingEntity {
	leftover := e.pending.Drain()
	e.stats.Discarded += len(leftover)

	for _, entity := range leftover {
		state := entity.State
		entity.State = StateDiscarded
		log.Warn().Str("url", entity.Key).Str("state", string(state)).Msg("运行结束时实体仍未完成,已丢弃")
	}
	return leftover
}

// Pending 待完成实体映射
func (e *Extractor) Pending() *PendingStore {
	return e.pending
}

// Stats 当前统计
func (e *Extractor) Stats() Stats {
	return e.stats
}
