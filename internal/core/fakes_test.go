package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	testSource = "https://reviews.example.com/analisis"

	listingPageOne = `<html><body>
<div class="review-item" data-page="1"><a href="/r/1">Game One</a></div>
<div class="review-item" data-page="1"><a href="/r/2">Game Two</a></div>
<a class="load-more" href="#">Ver más</a>
</body></html>`

	reviewValid = `<html><body>
<h1>Game One</h1>
<span class="review-platform">PC</span>
<span class="review-score">8,5</span>
<time datetime="2021-03-12">12 de marzo de 2021</time>
<a class="game-sheet" href="/g/1">Ficha</a>
</body></html>`

	reviewNoScore = `<html><body>
<h1>Game Two</h1>
<span class="review-platform">Switch</span>
<time datetime="2022-01-01">1 de enero de 2022</time>
<a class="game-sheet" href="/g/2">Ficha</a>
</body></html>`

	genresAction = `<html><body><span class="game-genre">Action</span></body></html>`
)

// step 某个URL的一次响应
type step struct {
	content string
	err     error
}

// fakeChain 按URL回放响应,同一URL的多次请求依次消费
type fakeChain struct {
	mu        sync.Mutex
	responses map[string][]step
	calls     map[string]int
	resets    int
	closes    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		responses: make(map[string][]step),
		calls:     make(map[string]int),
	}
}

func (c *fakeChain) on(rawURL string, steps ...step) *fakeChain {
	c.responses[rawURL] = append(c.responses[rawURL], steps...)
	return c
}

func (c *fakeChain) Resolve(_ context.Context, req *models.CrawlRequest) (*models.ResolvedDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[req.URL]++
	steps := c.responses[req.URL]
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: 未配置响应 %s", crawlers.ErrFetchFailure, req.URL)
	}
	current := steps[0]
	if len(steps) > 1 {
		c.responses[req.URL] = steps[1:]
	}
	if current.err != nil {
		return nil, current.err
	}
	return models.NewResolvedDocument(req, current.content, ""), nil
}

func (c *fakeChain) IsBrowserRouted(req *models.CrawlRequest) bool {
	return req.IsBrowserRouted()
}

func (c *fakeChain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
}

func (c *fakeChain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// memorySink 内存中的持久化
type memorySink struct {
	mu      sync.Mutex
	reviews []*models.Review
	err     error
}

func (s *memorySink) Save(_ context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reviews = append(s.reviews, review)
	return nil
}

// testConfig 从临时配置文件加载,其余使用默认值
func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("output:\n  base_dir: %s\n  progress: false\nresource:\n  enabled: false\n", filepath.Join(dir, "output"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, config.Validate())
	return config
}

func testTemplate(t *testing.T, config *Config) extract.Template {
	t.Helper()
	tmpl, err := extract.NewSiteTemplate(config.TemplateConfig())
	require.NoError(t, err)
	return tmpl
}

func testEngine(t *testing.T, config *Config, chain *fakeChain, sink *memorySink) (*CrawlEngine, *extract.Extractor) {
	t.Helper()

	extractor, err := extract.NewExtractor(testTemplate(t, config), config.ExtractorConfig())
	require.NoError(t, err)

	engine, err := NewCrawlEngine(chain, extractor, sink, EngineConfig{Workers: 2})
	require.NoError(t, err)
	return engine, extractor
}
