package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrRequiredFieldMissing 必需字段缺失或无法解析,实体将被丢弃
var ErrRequiredFieldMissing = errors.New("必需字段缺失")

var (
	// scoreToken 第一个数字片段,连同符号和分隔符一起取出
	scoreToken = regexp.MustCompile(`[-+]?\d[\d.,]*`)
	// scorePattern 只接受 8 / 8.5 / 8,5 形式
	scorePattern = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
)

// DefaultDateLayouts 默认日期格式(月份名称已转换为英文)
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"2/1/2006",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// monthNames 西班牙语月份(含缩写)到英文的映射
var monthNames = map[string]string{
	"enero": "January", "febrero": "February", "marzo": "March", "abril": "April",
	"mayo": "May", "junio": "June", "julio": "July", "agosto": "August",
	"septiembre": "September", "setiembre": "September", "octubre": "October",
	"noviembre": "November", "diciembre": "December",
	"ene": "Jan", "feb": "Feb", "mar": "Mar", "abr": "Apr", "may": "May", "jun": "Jun",
	"jul": "Jul", "ago": "Aug", "sep": "Sep", "sept": "Sep", "oct": "Oct", "nov": "Nov", "dic": "Dec",
}

// ParseScore 解析本地化格式的评分,必须落在[min, max]内
// 无法解析或越界时返回ErrRequiredFieldMissing,不使用默认值
func ParseScore(text string, min, max float64) (float64, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return 0, fmt.Errorf("%w: 评分为空", ErrRequiredFieldMissing)
	}

	// "8,5/10" 取第一个数字
	token := scoreToken.FindString(raw)
	token = strings.TrimRight(token, ".,")
	if !scorePattern.MatchString(token) {
		return 0, fmt.Errorf("%w: 评分无法解析 %q", ErrRequiredFieldMissing, raw)
	}

	number := strings.Replace(token, ",", ".", 1)
	score, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: 评分无法解析 %q", ErrRequiredFieldMissing, raw)
	}

	if score < min || score > max {
		return 0, fmt.Errorf("%w: 评分超出范围 %v (范围 [%v, %v])", ErrRequiredFieldMissing, score, min, max)
	}
	return score, nil
}

// ParseDate 按layouts依次解析日期,西班牙语月份先转换为英文
func ParseDate(text string, layouts []string) (time.Time, error) {
	raw := normalizeDate(text)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: 日期为空", ErrRequiredFieldMissing)
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: 日期无法解析 %q", ErrRequiredFieldMissing, text)
}

// normalizeDate 去除"de"连接词并转换月份名称
// "12 de marzo de 2021" -> "12 March 2021"
func normalizeDate(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	out := make([]string, 0, len(fields))

	for _, field := range fields {
		lower := strings.ToLower(strings.Trim(field, ".,"))
		if lower == "de" || lower == "del" {
			continue
		}
		if english, ok := monthNames[lower]; ok {
			if strings.HasSuffix(field, ",") {
				english += ","
			}
			out = append(out, english)
			continue
		}
		out = append(out, field)
	}
	return strings.Join(out, " ")
}

// SplitList 拆分逗号/斜杠/竖线分隔的列表并去重
func SplitList(values []string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, value := range values {
		for _, part := range strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == '/' || r == '|' || r == ';'
		}) {
			part = strings.TrimSpace(part)
			if part == "" || seen[strings.ToLower(part)] {
				continue
			}
			seen[strings.ToLower(part)] = true
			result = append(result, part)
		}
	}
	return result
}
