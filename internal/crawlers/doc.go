// Package crawlers 提供请求解析路径: 浏览器会话、自动化适配器和普通HTTP抓取
//
// # 概述
//
// 每个CrawlRequest要么声明一个适配器标识(走唯一的浏览器会话),要么不声明(走普通抓取)。
// 适配器按请求上的标识选择,从不根据响应内容推断。
//
// # 核心组件
//
// ## BrowserSession
//
// 整个爬取期间唯一的浏览器会话,首次使用时才启动浏览器(go-rod)。
// 驱动报告失效后会话立即关闭,之后的任何使用都返回ErrSessionClosed。
//
//	session := NewBrowserSession(LaunchRod, LaunchOptions{Headless: true})
//	defer session.Close()
//
// ## DelayAdapter (延迟加载)
//
// 在[min, max]内随机等待后导航,返回渲染后的内容。除共享会话外无状态。
//
// ## ScrollAdapter (滚动分页)
//
// 首次调用导航并等待初始标记;之后的调用不再导航,而是读取当前最大分页序号n,
// 滚动"加载更多"锚点并等待序号n+1的标记出现。
// 切换列表源前必须调用Reset。
//
// ## AdapterChain
//
// 持有会话和有序的适配器列表,第一个认领请求的适配器负责解析。
// 浏览器交互由链内互斥锁串行化。
//
//	chain, err := NewAdapterChain(session, NewPlainFetcher(fetchConfig, headers), delay, scroll)
//	doc, err := chain.Resolve(ctx, req)
//
// ## PlainFetcher
//
// 基于Colly的普通抓取,支持限速、重试和br/gzip/deflate解压。
// 重试耗尽返回ErrFetchFailure。
//
// ## RequestQueue / ResourceMonitor
//
// RequestQueue按fifo或continuation_first策略调度请求并对非续页请求去重;
// ResourceMonitor根据系统内存和CPU负载建议普通抓取的worker数量。
//
// # 错误处理
//
//   - ErrContentTimeout: 只影响当前请求链
//   - ErrFetchFailure: 只影响当前请求链
//   - ErrSessionUnusable / ErrSessionClosed: 中止整个爬取 (IsFatal)
//   - ErrUnknownAdapter: 请求声明的适配器不存在,不会回退到普通抓取
package crawlers
