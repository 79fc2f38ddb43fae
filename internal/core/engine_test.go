package core

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 列表两条,/r/2缺少评分; /r/1经过两跳输出且只带Action标签
func TestCrawlEngine_ScenarioA(t *testing.T) {
	config := testConfig(t)
	config.Extract.MaxListingPages = 1

	chain := newFakeChain().
		on(testSource, step{content: listingPageOne}).
		on("https://reviews.example.com/r/1", step{content: reviewValid}).
		on("https://reviews.example.com/r/2", step{content: reviewNoScore}).
		on("https://reviews.example.com/g/1", step{content: genresAction})
	sink := &memorySink{}

	engine, extractor := testEngine(t, config, chain, sink)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	require.Len(t, sink.reviews, 1)
	assert.Equal(t, "https://reviews.example.com/r/1", sink.reviews[0].URL)
	assert.Equal(t, []string{"Action"}, sink.reviews[0].Tags)
	assert.Equal(t, []string{"PC"}, sink.reviews[0].Platforms)
	assert.InDelta(t, 8.5, sink.reviews[0].Score, 0.001)

	assert.Equal(t, 0, extractor.Pending().Len(), "运行结束后不应残留待完成实体")
	assert.Equal(t, 0, chain.calls["https://reviews.example.com/g/2"])

	stats := engine.Stats()
	assert.Equal(t, 1, stats.Emitted)
	assert.Equal(t, 1, stats.Discarded)
	assert.Equal(t, 4, stats.Requests)
	assert.Equal(t, 3, stats.BrowserRequests)
	assert.Equal(t, 1, stats.PlainRequests)

	require.Len(t, engine.Failed(), 1)
	assert.Equal(t, "field_missing", engine.Failed()[0].ErrorType)
}

// 第二次滚动超时: 首屏已调度的条目仍然完成,运行正常结束
func TestCrawlEngine_ScenarioC(t *testing.T) {
	config := testConfig(t)

	chain := newFakeChain().
		on(testSource, step{content: listingPageOne}, step{err: crawlers.ErrContentTimeout}).
		on("https://reviews.example.com/r/1", step{content: reviewValid}).
		on("https://reviews.example.com/r/2", step{content: reviewNoScore}).
		on("https://reviews.example.com/g/1", step{content: genresAction})
	sink := &memorySink{}

	engine, extractor := testEngine(t, config, chain, sink)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	assert.Equal(t, 2, chain.calls[testSource])
	assert.Len(t, sink.reviews, 1)

	stats := engine.Stats()
	assert.Equal(t, 1, stats.Timeouts)
	assert.Equal(t, 1, stats.FailedRequests)
	assert.Equal(t, 1, stats.ListingPages)
	assert.Equal(t, 0, extractor.Pending().Len())
}

// 会话失效中止运行,剩余实体全部丢弃
func TestCrawlEngine_FatalAbort(t *testing.T) {
	config := testConfig(t)
	config.Extract.MaxListingPages = 1

	chain := newFakeChain().
		on(testSource, step{content: listingPageOne}).
		on("https://reviews.example.com/r/1", step{err: crawlers.ErrSessionUnusable}).
		on("https://reviews.example.com/r/2", step{content: reviewNoScore})
	sink := &memorySink{}

	engine, extractor := testEngine(t, config, chain, sink)
	err := engine.Run(context.Background(), extractor.Seed(testSource))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunAborted)
	assert.Equal(t, 0, chain.calls["https://reviews.example.com/r/2"], "中止后不应再处理请求")
	assert.Empty(t, sink.reviews)
	assert.Equal(t, 0, extractor.Pending().Len())
	assert.Equal(t, 2, engine.Stats().Discarded)
}

// 第二跳请求失败时按保留策略输出不带标签的实体
func TestCrawlEngine_Hop2FetchFailureKeep(t *testing.T) {
	config := testConfig(t)
	config.Extract.MaxListingPages = 1

	chain := newFakeChain().
		on(testSource, step{content: listingPageOne}).
		on("https://reviews.example.com/r/1", step{content: reviewValid}).
		on("https://reviews.example.com/r/2", step{content: reviewNoScore})
	sink := &memorySink{}

	engine, extractor := testEngine(t, config, chain, sink)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	require.Len(t, sink.reviews, 1)
	assert.Empty(t, sink.reviews[0].Tags)
	assert.Equal(t, 1, engine.Stats().FetchFailures)
}

func TestCrawlEngine_StoreFailure(t *testing.T) {
	config := testConfig(t)
	config.Extract.MaxListingPages = 1

	chain := newFakeChain().
		on(testSource, step{content: listingPageOne}).
		on("https://reviews.example.com/r/1", step{content: reviewValid}).
		on("https://reviews.example.com/r/2", step{content: reviewNoScore}).
		on("https://reviews.example.com/g/1", step{content: genresAction})
	sink := &memorySink{err: errors.New("磁盘已满")}

	engine, extractor := testEngine(t, config, chain, sink)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	assert.Equal(t, 1, engine.Stats().StoreFailures)
	assert.Equal(t, 0, engine.Stats().Emitted)
}

func TestCrawlEngine_InvalidSeed(t *testing.T) {
	config := testConfig(t)
	engine, _ := testEngine(t, config, newFakeChain(), &memorySink{})

	err := engine.Run(context.Background(), models.NewCrawlRequest("ftp://example.com", "parse_listing", "scroll"))
	assert.Error(t, err)
}

func TestCrawlEngine_ContextCancelled(t *testing.T) {
	config := testConfig(t)
	chain := newFakeChain().on(testSource, step{content: listingPageOne})

	engine, extractor := testEngine(t, config, chain, &memorySink{})

	ctx, cancel := context.WithCancel(context.Background())
	engine.OnRequest = func(*models.CrawlRequest) { cancel() }

	err := engine.Run(ctx, extractor.Seed(testSource))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, extractor.Pending().Len())
}
