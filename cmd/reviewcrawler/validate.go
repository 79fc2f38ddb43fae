package main

import (
	"fmt"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证爬取命令的标志
func ValidateFlags(targetURL string, urlFile string, workers int) error {
	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}

	if targetURL != "" {
		if err := ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的列表源URL: %w", err)
		}
	}

	// 0表示使用配置文件中的值
	if workers < 0 || workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", workers)
	}

	return nil
}

// ValidateQueryFlags 验证查询命令的标志
func ValidateQueryFlags(limit, offset int, scoreMin, scoreMax float64, hasMin, hasMax bool) error {
	if limit < 1 || limit > 1000 {
		return fmt.Errorf("分页大小必须在1-1000之间,当前值: %d", limit)
	}
	if offset < 0 {
		return fmt.Errorf("偏移量不能为负数,当前值: %d", offset)
	}
	if hasMin && hasMax && scoreMin > scoreMax {
		return fmt.Errorf("最低评分(%.2f)不能大于最高评分(%.2f)", scoreMin, scoreMax)
	}
	return nil
}
