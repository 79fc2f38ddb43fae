package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/RecoveryAshes/reviewcrawler/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理HTTP请求头部
// 优先级: 默认 < 配置文件 < 命令行,实现 models.HeaderProvider 接口
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header
}

// NewHeaderManager 创建头部管理器
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: getDefaultHeaders(),
		config:   make(http.Header),
		cli:      make(http.Header),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}
	if err := utils.ValidateHeaders(hm.config); err != nil {
		return nil, fmt.Errorf("配置文件中的头部无效: %w", err)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		if err := utils.ValidateHeaders(parsed); err != nil {
			return nil, fmt.Errorf("命令行头部无效: %w", err)
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"es-ES,es;q=0.9,en;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// GetHeaders 返回合并后的头部
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	merged := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			merged[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	return merged, nil
}

// BrowserHeaders 浏览器页面使用的额外头部
// Accept-Encoding由浏览器自己管理
func (hm *HeaderManager) BrowserHeaders() map[string]string {
	merged, _ := hm.GetHeaders()

	result := make(map[string]string, len(merged))
	for name, values := range merged {
		if name == "Accept-Encoding" {
			continue
		}
		if len(values) > 0 {
			result[name] = values[0]
		}
	}
	return result
}

// SafeString 脱敏后的头部,用于日志输出
func (hm *HeaderManager) SafeString() string {
	merged, _ := hm.GetHeaders()
	return utils.RedactHeaders(merged)
}

// Sources 列出每个头部的来源
func (hm *HeaderManager) Sources() map[string]string {
	result := make(map[string]string)
	for name := range hm.defaults {
		result[http.CanonicalHeaderKey(name)] = "default"
	}
	for name := range hm.config {
		result[http.CanonicalHeaderKey(name)] = "config"
	}
	for name := range hm.cli {
		result[http.CanonicalHeaderKey(name)] = "cli"
	}
	return result
}
