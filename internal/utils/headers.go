package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由HTTP客户端/浏览器管理的头部
	ForbiddenHeaders = []string{"Host", "Content-Length", "Transfer-Encoding", "Connection"}

	// SensitiveKeywords 敏感头部名称关键字
	SensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}

	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderError 头部校验失败
type HeaderError struct {
	Name   string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("HTTP头部 '%s' 无效: %s", e.Name, e.Reason)
}

// ValidateHeaders 校验所有头部名称和值
func ValidateHeaders(headers http.Header) error {
	for name, values := range headers {
		if err := ValidateHeaderName(name); err != nil {
			return err
		}
		for _, value := range values {
			if len(value) > MaxHeaderValueLength {
				return &HeaderError{Name: name, Reason: fmt.Sprintf("值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength)}
			}
			if !headerValuePattern.MatchString(value) {
				return &HeaderError{Name: name, Reason: "值包含非法字符 (仅允许可打印ASCII字符)"}
			}
		}
	}
	return nil
}

// ValidateHeaderName 校验头部名称
func ValidateHeaderName(name string) error {
	if name == "" {
		return &HeaderError{Name: name, Reason: "名称不能为空"}
	}
	for _, forbidden := range ForbiddenHeaders {
		if strings.EqualFold(name, forbidden) {
			return &HeaderError{Name: name, Reason: "此头部由HTTP客户端自动管理,不允许自定义"}
		}
	}
	if !headerNamePattern.MatchString(name) {
		return &HeaderError{Name: name, Reason: "名称包含非法字符 (仅允许字母、数字和连字符)"}
	}
	return nil
}

// IsSensitiveHeader 根据名称关键字判断是否为敏感头部
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactHeaders 返回脱敏后的头部字符串(按名称排序,用于日志)
func RedactHeaders(headers http.Header) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		values := headers[name]
		if len(values) == 0 {
			continue
		}
		parts = append(parts, name+": "+RedactHeaderValue(name, values[0]))
	}
	return strings.Join(parts, ", ")
}
