package crawlers

import (
	"errors"
)

// 错误类型定义
var (
	// ErrContentTimeout 等待内容标记超时,只影响当前请求链
	ErrContentTimeout = errors.New("内容标记未在超时时间内出现")

	// ErrSessionUnusable 浏览器进程或连接已失效,整个爬取必须中止
	ErrSessionUnusable = errors.New("浏览器会话不可用")

	// ErrSessionClosed 会话已关闭后再次使用
	ErrSessionClosed = errors.New("浏览器会话已关闭")

	// ErrFetchFailure 普通HTTP抓取失败(重试已耗尽)
	ErrFetchFailure = errors.New("页面抓取失败")

	// ErrUnknownAdapter 请求声明的适配器不存在
	ErrUnknownAdapter = errors.New("没有适配器认领该请求")

	// ErrNotClaimed 适配器被调用解析不属于它的请求
	ErrNotClaimed = errors.New("请求不属于该适配器")
)

// IsFatal 判断错误是否需要中止整个爬取
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionUnusable) || errors.Is(err, ErrSessionClosed)
}
