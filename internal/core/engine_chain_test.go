package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gauge 记录同时进入的调用数峰值
type gauge struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (g *gauge) enter() {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) leave() {
	g.active.Add(-1)
}

// recordingDriver 浏览器驱动替身
// 每次滚动在当前页追加blocks中的下一段,导航后滚动计数清零
type recordingDriver struct {
	gauge

	mu          sync.Mutex
	pages       map[string]string
	blocks      map[string][]string
	url         string
	current     string
	scrolled    int
	navigations []string
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{
		pages:  make(map[string]string),
		blocks: make(map[string][]string),
	}
}

func (d *recordingDriver) launch(crawlers.LaunchOptions) (crawlers.Driver, error) {
	return d, nil
}

// hold 占用驱动一小段时间,便于暴露重叠调用
func (d *recordingDriver) hold() func() {
	d.enter()
	time.Sleep(time.Millisecond)
	return d.leave
}

func (d *recordingDriver) Navigate(_ context.Context, url string) error {
	defer d.hold()()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	d.url = url
	d.current = d.pages[url]
	d.scrolled = 0
	return nil
}

func (d *recordingDriver) Content(context.Context) (string, error) {
	defer d.hold()()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *recordingDriver) CurrentURL(context.Context) (string, error) {
	defer d.hold()()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *recordingDriver) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	defer d.hold()()

	d.mu.Lock()
	defer d.mu.Unlock()
	needle := selector
	switch {
	case strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]"):
		needle = strings.Trim(selector, "[]")
	case strings.HasPrefix(selector, "."):
		needle = `class="` + strings.TrimPrefix(selector, ".") + `"`
	}
	if !strings.Contains(d.current, needle) {
		return fmt.Errorf("%w: %s", crawlers.ErrContentTimeout, selector)
	}
	return nil
}

func (d *recordingDriver) ScrollIntoView(context.Context, string, time.Duration) error {
	defer d.hold()()

	d.mu.Lock()
	defer d.mu.Unlock()
	blocks := d.blocks[d.url]
	if d.scrolled < len(blocks) {
		d.current = strings.Replace(d.current, "</body>", blocks[d.scrolled]+"</body>", 1)
	}
	d.scrolled++
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

// slowFetcher 普通抓取替身,每次抓取停留一段时间
type slowFetcher struct {
	gauge

	pages map[string]string
	pause time.Duration
	calls atomic.Int32
}

func (f *slowFetcher) Fetch(ctx context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	f.enter()
	defer f.leave()
	f.calls.Add(1)

	select {
	case <-time.After(f.pause):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	content, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crawlers.ErrFetchFailure, req.URL)
	}
	return models.NewResolvedDocument(req, content, req.URL), nil
}

func reviewPage(title, sheet string) string {
	return `<html><body>
<h1>` + title + `</h1>
<span class="review-platform">PC</span>
<span class="review-score">7</span>
<time datetime="2021-05-01">1 de mayo de 2021</time>
<a class="game-sheet" href="` + sheet + `">Ficha</a>
</body></html>`
}

// realChainEngine 使用配置生成的适配器、真实的会话与适配器链
func realChainEngine(t *testing.T, config *Config, driver *recordingDriver, fetcher crawlers.Fetcher, sink *memorySink, workers int) (*CrawlEngine, *extract.Extractor) {
	t.Helper()

	for i := range config.Adapters {
		if config.Adapters[i].Type == AdapterTypeDelay {
			config.Adapters[i].MinDelay = 0
			config.Adapters[i].MaxDelay = 0
		}
	}
	require.NoError(t, config.Validate())

	adapters, err := config.BuildAdapters()
	require.NoError(t, err)

	session := crawlers.NewBrowserSession(driver.launch, crawlers.LaunchOptions{Headless: true})
	chain, err := crawlers.NewAdapterChain(session, fetcher, adapters...)
	require.NoError(t, err)
	t.Cleanup(func() { chain.Close() })

	extractor, err := extract.NewExtractor(testTemplate(t, config), config.ExtractorConfig())
	require.NoError(t, err)

	engine, err := NewCrawlEngine(chain, extractor, sink, EngineConfig{Workers: workers})
	require.NoError(t, err)
	return engine, extractor
}

// 第一跳走延迟适配器时,会话在两次滚动之间被详情页占用,第二页仍能加载
func TestCrawlEngine_RealChainScrollAfterReviewNavigation(t *testing.T) {
	config := testConfig(t)
	config.Extract.MaxListingPages = 2

	driver := newRecordingDriver()
	driver.pages[testSource] = listingPageOne
	driver.blocks[testSource] = []string{`<div class="review-item" data-page="2"><a href="/r/3">Game Three</a></div>`}
	driver.pages["https://reviews.example.com/r/1"] = reviewValid
	driver.pages["https://reviews.example.com/r/2"] = reviewNoScore
	driver.pages["https://reviews.example.com/r/3"] = reviewPage("Game Three", "/g/3")

	fetcher := &slowFetcher{pages: map[string]string{
		"https://reviews.example.com/g/1": genresAction,
		"https://reviews.example.com/g/3": genresAction,
	}}
	sink := &memorySink{}

	engine, extractor := realChainEngine(t, config, driver, fetcher, sink, 2)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	stats := engine.Stats()
	assert.Equal(t, 2, stats.ListingPages)
	assert.Equal(t, 0, stats.Timeouts)
	assert.Equal(t, 2, stats.Emitted)

	urls := make([]string, 0, len(sink.reviews))
	for _, r := range sink.reviews {
		urls = append(urls, r.URL)
	}
	assert.ElementsMatch(t, []string{"https://reviews.example.com/r/1", "https://reviews.example.com/r/3"}, urls)

	assert.Equal(t, []string{
		testSource,
		"https://reviews.example.com/r/1",
		"https://reviews.example.com/r/2",
		testSource,
		"https://reviews.example.com/r/3",
	}, driver.visited(), "滚动前应回到列表页")
	assert.Equal(t, int32(1), driver.peak.Load(), "浏览器交互不应重叠")
	assert.Equal(t, 0, extractor.Pending().Len())
}

// 普通抓取的并发不超过worker数,且浏览器交互仍然串行
func TestCrawlEngine_RealChainPlainFetchBounded(t *testing.T) {
	const items, workers = 8, 3

	config := testConfig(t)
	config.Extract.MaxListingPages = 1
	config.Extract.ReviewTag = ""

	var listing strings.Builder
	listing.WriteString("<html><body>\n")
	fetcher := &slowFetcher{pages: make(map[string]string), pause: 20 * time.Millisecond}
	for i := 1; i <= items; i++ {
		fmt.Fprintf(&listing, `<div class="review-item" data-page="1"><a href="/r/%d">Game %d</a></div>`+"\n", i, i)
		fetcher.pages[fmt.Sprintf("https://reviews.example.com/r/%d", i)] = reviewPage(fmt.Sprintf("Game %d", i), fmt.Sprintf("/g/%d", i))
		fetcher.pages[fmt.Sprintf("https://reviews.example.com/g/%d", i)] = genresAction
	}
	listing.WriteString("</body></html>")

	driver := newRecordingDriver()
	driver.pages[testSource] = listing.String()
	sink := &memorySink{}

	engine, extractor := realChainEngine(t, config, driver, fetcher, sink, workers)
	require.NoError(t, engine.Run(context.Background(), extractor.Seed(testSource)))

	assert.Len(t, sink.reviews, items)
	assert.Equal(t, int32(2*items), fetcher.calls.Load())
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(workers), "普通抓取并发超过worker数")
	assert.Greater(t, fetcher.peak.Load(), int32(1), "普通抓取应并发执行")
	assert.Equal(t, int32(1), driver.peak.Load())

	stats := engine.Stats()
	assert.Equal(t, 2*items, stats.PlainRequests)
	assert.Equal(t, 1, stats.BrowserRequests)
}
