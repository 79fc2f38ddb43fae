package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// healthCheckTimeout 判断浏览器是否存活的探测超时
const healthCheckTimeout = 3 * time.Second

// rodDriver 基于go-rod的驱动实现
// 只持有一个标签页,所有交互都在该标签页上进行
type rodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cleanup  func()
}

// LaunchRod 启动浏览器并打开唯一的标签页
func LaunchRod(opts LaunchOptions) (Driver, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}

	// 允许访问自签名证书的站点(内网/测试环境)
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if opts.LaunchTimeout > 0 {
		browser = browser.Timeout(opts.LaunchTimeout)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	browser = browser.CancelTimeout()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	d := &rodDriver{
		launcher: l,
		browser:  browser,
		page:     page,
	}

	if len(opts.Headers) > 0 {
		pairs := make([]string, 0, len(opts.Headers)*2)
		for name, value := range opts.Headers {
			pairs = append(pairs, name, value)
		}
		cleanup, err := page.SetExtraHeaders(pairs)
		if err != nil {
			log.Warn().Err(err).Msg("设置浏览器请求头失败")
		} else {
			d.cleanup = cleanup
		}
	}

	log.Debug().Str("control_url", controlURL).Msg("浏览器已启动")
	return d, nil
}

// Navigate 导航并等待加载完成
func (d *rodDriver) Navigate(ctx context.Context, url string) (err error) {
	defer d.recoverPanic(&err)

	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return d.classify(ctx, fmt.Errorf("导航失败 [%s]: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return d.classify(ctx, fmt.Errorf("等待页面加载失败 [%s]: %w", url, err))
	}
	return nil
}

// Content 返回当前HTML
func (d *rodDriver) Content(ctx context.Context) (content string, err error) {
	defer d.recoverPanic(&err)

	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", d.classify(ctx, fmt.Errorf("读取页面内容失败: %w", err))
	}
	return html, nil
}

// CurrentURL 返回标签页当前URL
func (d *rodDriver) CurrentURL(ctx context.Context) (current string, err error) {
	defer d.recoverPanic(&err)

	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", d.classify(ctx, fmt.Errorf("读取页面信息失败: %w", err))
	}
	return info.URL, nil
}

// WaitFor 等待选择器出现
func (d *rodDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) (err error) {
	defer d.recoverPanic(&err)

	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s (等待%v)", ErrContentTimeout, selector, timeout)
		}
		return d.classify(ctx, fmt.Errorf("等待元素失败 [%s]: %w", selector, err))
	}
	return nil
}

// ScrollIntoView 滚动元素到可视区域
func (d *rodDriver) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) (err error) {
	defer d.recoverPanic(&err)

	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: 加载更多元素 %s", ErrContentTimeout, selector)
		}
		return d.classify(ctx, fmt.Errorf("查找加载更多元素失败 [%s]: %w", selector, err))
	}
	if err := el.ScrollIntoView(); err != nil {
		return d.classify(ctx, fmt.Errorf("滚动失败 [%s]: %w", selector, err))
	}
	return nil
}

// Close 关闭浏览器并清理进程
func (d *rodDriver) Close() error {
	if d.cleanup != nil {
		d.cleanup()
	}

	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()

	if err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	return nil
}

// classify 非超时错误时探测浏览器是否存活,失效则包装为ErrSessionUnusable
func (d *rodDriver) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if _, probeErr := (proto.BrowserGetVersion{}).Call(d.browser.Timeout(healthCheckTimeout)); probeErr != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnusable, err)
	}
	return err
}

// recoverPanic 将rod内部的panic转换为会话失效
func (d *rodDriver) recoverPanic(err *error) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Msg("浏览器操作panic")
		*err = fmt.Errorf("%w: %v", ErrSessionUnusable, r)
	}
}
