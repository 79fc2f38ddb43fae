package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
)

// 可查询字段
var (
	scalarFields = map[string]bool{"title": true, "url": true, "reviewer": true}
	arrayFields  = map[string]bool{"tags": true, "platforms": true}
	rangeFields  = map[string]bool{"score": true, "published_at": true}
	sortFields   = map[string]bool{"score": true, "published_at": true, "title": true, "crawled_at": true}
)

// Bound 区间的一端
type Bound struct {
	Value     any // score为float64,published_at为time.Time
	Inclusive bool
}

// RangeFilter 单个字段上的区间过滤
type RangeFilter struct {
	Field string
	Lower *Bound
	Upper *Bound
}

// Query 查询条件
type Query struct {
	// Equals 字段到可接受值的映射,数组字段匹配任意一个元素即可
	Equals map[string][]string
	// Range 最多一个区间过滤
	Range  *RangeFilter
	SortBy string
	Desc   bool
	Offset int
	Limit  int
}

// Page 一页查询结果
type Page struct {
	Reviews []*models.Review `json:"reviews"`
	HasMore bool             `json:"has_more"`
}

// Query 按条件分页查询
// 多取一条记录判断是否还有下一页
func (s *SQLiteStore) Query(ctx context.Context, q Query) (*Page, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("分页大小必须大于0")
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("偏移量不能为负数")
	}

	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}

	sortBy := "crawled_at"
	if q.SortBy != "" {
		if !sortFields[q.SortBy] {
			return nil, fmt.Errorf("不支持的排序字段: %s", q.SortBy)
		}
		sortBy = q.SortBy
	}
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, url, title, tags, platforms, reviewer, score, published_at, summary, pros, cons, crawled_at FROM reviews`)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, url ASC LIMIT ? OFFSET ?", sortBy, direction)
	args = append(args, q.Limit+1, q.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("查询失败: %w", err)
	}
	defer rows.Close()

	page := &Page{Reviews: make([]*models.Review, 0, q.Limit)}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		if len(page.Reviews) == q.Limit {
			page.HasMore = true
			break
		}
		page.Reviews = append(page.Reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取查询结果失败: %w", err)
	}

	return page, nil
}

// buildWhere 生成WHERE子句,字段名只来自白名单
func buildWhere(q Query) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	fields := make([]string, 0, len(q.Equals))
	for field := range q.Equals {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		values := q.Equals[field]
		if len(values) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")

		switch {
		case scalarFields[field]:
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", field, placeholders))
		case arrayFields[field]:
			clauses = append(clauses, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM json_each(reviews.%s) WHERE json_each.value IN (%s))", field, placeholders))
		default:
			return "", nil, fmt.Errorf("不支持的过滤字段: %s", field)
		}
		for _, v := range values {
			args = append(args, v)
		}
	}

	if r := q.Range; r != nil {
		if !rangeFields[r.Field] {
			return "", nil, fmt.Errorf("不支持的区间字段: %s", r.Field)
		}
		if r.Field == "published_at" {
			clauses = append(clauses, "published_at IS NOT NULL AND published_at <> ''")
		}
		for _, side := range []struct {
			bound *Bound
			op    string
		}{{r.Lower, ">"}, {r.Upper, "<"}} {
			if side.bound == nil {
				continue
			}
			value, err := rangeValue(r.Field, side.bound.Value)
			if err != nil {
				return "", nil, err
			}
			op := side.op
			if side.bound.Inclusive {
				op += "="
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", r.Field, op))
			args = append(args, value)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// rangeValue 将区间值转换为列的存储格式
func rangeValue(field string, value any) (any, error) {
	switch field {
	case "score":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case "published_at":
		if v, ok := value.(time.Time); ok {
			if v.IsZero() {
				return nil, fmt.Errorf("区间边界不能为零值时间")
			}
			return formatTime(v), nil
		}
	}
	return nil, fmt.Errorf("区间值类型不匹配 [%s]: %T", field, value)
}
