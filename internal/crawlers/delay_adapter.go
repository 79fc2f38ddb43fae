package crawlers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// SleepFunc 可被context打断的等待函数
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext 默认等待实现
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayAdapterConfig 延迟加载适配器配置
type DelayAdapterConfig struct {
	Tag      models.AdapterTag
	MinDelay time.Duration // 导航前最小等待
	MaxDelay time.Duration // 导航前最大等待
}

// DelayAdapter 先随机等待再导航加载的适配器
// 除共享会话外无状态,等待用于降低触发反爬的概率
type DelayAdapter struct {
	config DelayAdapterConfig
	rng    *rand.Rand
	sleep  SleepFunc
}

// NewDelayAdapter 创建延迟加载适配器
func NewDelayAdapter(config DelayAdapterConfig) (*DelayAdapter, error) {
	if config.Tag == models.TagNone {
		return nil, fmt.Errorf("适配器标识不能为空")
	}
	if config.MinDelay < 0 || config.MaxDelay < config.MinDelay {
		return nil, fmt.Errorf("延迟范围无效: [%v, %v]", config.MinDelay, config.MaxDelay)
	}

	return &DelayAdapter{
		config: config,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		sleep:  sleepContext,
	}, nil
}

// Tag 适配器标识
func (a *DelayAdapter) Tag() models.AdapterTag {
	return a.config.Tag
}

// Claims 是否认领请求
func (a *DelayAdapter) Claims(req *models.CrawlRequest) bool {
	return claims(a.config.Tag, req)
}

// nextDelay 在[min, max]内均匀取值
func (a *DelayAdapter) nextDelay() time.Duration {
	span := a.config.MaxDelay - a.config.MinDelay
	if span <= 0 {
		return a.config.MinDelay
	}
	return a.config.MinDelay + time.Duration(a.rng.Int64N(int64(span)+1))
}

// Resolve 等待后导航并返回渲染后的内容
func (a *DelayAdapter) Resolve(ctx context.Context, req *models.CrawlRequest, session *BrowserSession) (*models.ResolvedDocument, error) {
	if !a.Claims(req) {
		return nil, ErrNotClaimed
	}

	delay := a.nextDelay()
	log.Debug().Str("url", req.URL).Dur("delay", delay).Msg("延迟后加载页面")

	if err := a.sleep(ctx, delay); err != nil {
		return nil, err
	}

	if err := session.Navigate(ctx, req.URL); err != nil {
		return nil, err
	}

	return snapshot(ctx, req, session)
}
