package crawlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeDriver 可编程的浏览器驱动
// pages为导航后的内容;每次ScrollIntoView追加scrolls中的下一段内容
type fakeDriver struct {
	mu sync.Mutex

	pages   map[string]string
	scrolls []string

	current string
	url     string

	navigations []string
	waits       []string
	scrollCalls int
	closed      int

	navigateErr error
	waitErr     map[string]error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		pages:   make(map[string]string),
		waitErr: make(map[string]error),
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.navigations = append(d.navigations, url)
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.url = url
	d.current = d.pages[url]
	return nil
}

func (d *fakeDriver) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// WaitFor 只识别 [data-page="N"] 形式的标记和普通子串
func (d *fakeDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.waits = append(d.waits, selector)
	if err, ok := d.waitErr[selector]; ok {
		return err
	}
	if !strings.Contains(d.current, markerNeedle(selector)) {
		return fmt.Errorf("%w: %s", ErrContentTimeout, selector)
	}
	return nil
}

func (d *fakeDriver) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scrollCalls++
	if len(d.scrolls) > 0 {
		d.current = strings.Replace(d.current, "</body>", d.scrolls[0]+"</body>", 1)
		d.scrolls = d.scrolls[1:]
	}
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// markerNeedle 将选择器转换为用于匹配HTML的子串
func markerNeedle(selector string) string {
	if strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]") {
		return strings.Trim(selector, "[]")
	}
	if strings.HasPrefix(selector, ".") {
		return `class="` + strings.TrimPrefix(selector, ".") + `"`
	}
	return selector
}

// countingLauncher 记录启动次数的启动器
type countingLauncher struct {
	driver   *fakeDriver
	launches int
	err      error
}

func (l *countingLauncher) launch(opts LaunchOptions) (Driver, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

func sessionWith(driver *fakeDriver) (*BrowserSession, *countingLauncher) {
	l := &countingLauncher{driver: driver}
	return NewBrowserSession(l.launch, LaunchOptions{Headless: true}), l
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
