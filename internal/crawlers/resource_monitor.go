package crawlers

import (
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64   // 安全保留内存(字节)
	WorkerMemoryUsage   int64   // 单个抓取worker平均内存消耗(字节)
	CPULoadThreshold    float64 // CPU负载阈值(%),超过时worker数减半
	MaxWorkers          int     // 绝对最大worker数
}

// ResourceMonitor 系统资源监控器
// 职责: 根据可用内存和CPU负载给出普通抓取worker数量建议
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 可替换的采样函数,测试中注入固定值
	availableMemory func() (uint64, error)
	cpuPercent      func() (float64, error)
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 50 * 1024 * 1024 // 50MB
	}
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = 80
	}

	return &ResourceMonitor{
		config:          config,
		availableMemory: systemAvailableMemory,
		cpuPercent:      systemCPUPercent,
	}
}

// SuggestWorkers 返回min(configured, 资源允许的上限),至少为1
func (rm *ResourceMonitor) SuggestWorkers(configured int) int {
	if configured < 1 {
		configured = 1
	}

	result := configured
	if rm.config.MaxWorkers > 0 && rm.config.MaxWorkers < result {
		result = rm.config.MaxWorkers
	}

	if byCPU := runtime.NumCPU() * 4; byCPU < result {
		result = byCPU
	}

	available, err := rm.availableMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,忽略内存限制")
	} else {
		surplus := int64(available) - rm.config.SafetyReserveMemory
		byMemory := int(surplus / rm.config.WorkerMemoryUsage)
		if byMemory < result {
			result = byMemory
		}
	}

	usage, err := rm.cpuPercent()
	if err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if usage > rm.config.CPULoadThreshold {
		log.Warn().Float64("cpu", usage).Msg("CPU负载过高,减少worker数量")
		result /= 2
	}

	if result < 1 {
		result = 1
	}

	log.Debug().Int("configured", configured).Int("suggested", result).Msg("worker数量建议")
	return result
}

// systemAvailableMemory 使用gopsutil读取系统可用内存
func systemAvailableMemory() (uint64, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vmStat.Available, nil
}

// systemCPUPercent 所有核心的平均使用率(100毫秒采样)
func systemCPUPercent() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return percentages[0], nil
}
