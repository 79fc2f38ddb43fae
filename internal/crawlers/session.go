package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Driver 浏览器自动化驱动
// 会话只通过该接口与浏览器交互,测试中可替换为假实现
type Driver interface {
	// Navigate 导航到URL并等待页面加载
	Navigate(ctx context.Context, url string) error
	// Content 返回当前渲染后的HTML快照
	Content(ctx context.Context) (string, error)
	// CurrentURL 返回当前页面URL
	CurrentURL(ctx context.Context) (string, error)
	// WaitFor 阻塞直到选择器匹配的元素出现,超时返回ErrContentTimeout
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// ScrollIntoView 将选择器匹配的元素滚动到可视区域
	ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error
	// Close 释放浏览器进程/连接
	Close() error
}

// LaunchOptions 浏览器启动参数
type LaunchOptions struct {
	Headless      bool              // 无头模式
	BinPath       string            // 浏览器可执行文件路径(为空时自动下载/查找)
	LaunchTimeout time.Duration     // 启动超时
	Headers       map[string]string // 额外请求头
}

// DriverLauncher 创建驱动的函数
type DriverLauncher func(opts LaunchOptions) (Driver, error)

// BrowserSession 唯一的浏览器会话
// 由AdapterChain持有,所有适配器共享
type BrowserSession struct {
	launch DriverLauncher
	opts   LaunchOptions

	driver Driver
	closed bool
	mu     sync.Mutex
}

// NewBrowserSession 创建浏览器会话(首次Acquire时才真正启动浏览器)
func NewBrowserSession(launch DriverLauncher, opts LaunchOptions) *BrowserSession {
	return &BrowserSession{
		launch: launch,
		opts:   opts,
	}
}

// Acquire 返回唯一的驱动实例,首次调用时启动浏览器
func (s *BrowserSession) Acquire() (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.driver != nil {
		return s.driver, nil
	}

	if s.launch == nil {
		return nil, fmt.Errorf("%w: 未配置浏览器启动器", ErrSessionUnusable)
	}

	driver, err := s.launch(s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: 启动浏览器失败: %v", ErrSessionUnusable, err)
	}

	s.driver = driver
	log.Debug().Bool("headless", s.opts.Headless).Msg("浏览器会话已创建")
	return driver, nil
}

// Navigate 导航到URL
func (s *BrowserSession) Navigate(ctx context.Context, url string) error {
	driver, err := s.Acquire()
	if err != nil {
		return err
	}
	return s.check(driver.Navigate(ctx, url))
}

// CurrentContent 返回当前渲染文档快照
func (s *BrowserSession) CurrentContent(ctx context.Context) (string, error) {
	driver, err := s.Acquire()
	if err != nil {
		return "", err
	}
	content, err := driver.Content(ctx)
	return content, s.check(err)
}

// CurrentURL 返回当前页面URL
func (s *BrowserSession) CurrentURL(ctx context.Context) (string, error) {
	driver, err := s.Acquire()
	if err != nil {
		return "", err
	}
	current, err := driver.CurrentURL(ctx)
	return current, s.check(err)
}

// WaitFor 等待内容标记出现
func (s *BrowserSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	driver, err := s.Acquire()
	if err != nil {
		return err
	}
	return s.check(driver.WaitFor(ctx, selector, timeout))
}

// ScrollIntoView 滚动元素到可视区域
func (s *BrowserSession) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error {
	driver, err := s.Acquire()
	if err != nil {
		return err
	}
	return s.check(driver.ScrollIntoView(ctx, selector, timeout))
}

// Closed 会话是否已关闭
func (s *BrowserSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close 关闭会话,重复调用返回ErrSessionClosed
func (s *BrowserSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	if s.driver == nil {
		return nil
	}

	err := s.driver.Close()
	s.driver = nil
	if err != nil {
		log.Warn().Err(err).Msg("关闭浏览器失败")
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}

	log.Debug().Msg("浏览器会话已关闭")
	return nil
}

// check 驱动报告会话失效时立即关闭会话,避免泄漏浏览器进程
func (s *BrowserSession) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionUnusable) {
		log.Error().Err(err).Msg("浏览器会话失效,正在关闭")
		if closeErr := s.Close(); closeErr != nil && !errors.Is(closeErr, ErrSessionClosed) {
			log.Warn().Err(closeErr).Msg("关闭失效会话失败")
		}
	}
	return err
}
