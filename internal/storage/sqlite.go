package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// timeLayout 固定宽度的UTC时间,保证字符串比较与时间顺序一致
const timeLayout = "2006-01-02T15:04:05Z"

// SQLiteStore 评测记录的持久化存储
type SQLiteStore struct {
	db *sql.DB
}

// Open 打开(或创建)数据库并初始化表结构
// path为":memory:"时使用内存数据库
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败 [%s]: %w", path, err)
	}
	// 内存数据库每个连接都是独立的库
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save 保存完成的评测记录,URL相同时覆盖
func (s *SQLiteStore) Save(ctx context.Context, review *models.Review) error {
	if err := review.Validate(); err != nil {
		return err
	}

	tags, err := json.Marshal(nonNil(review.Tags))
	if err != nil {
		return fmt.Errorf("序列化标签失败: %w", err)
	}
	platforms, err := json.Marshal(nonNil(review.Platforms))
	if err != nil {
		return fmt.Errorf("序列化平台失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO reviews (id, url, title, tags, platforms, reviewer, score, published_at, summary, pros, cons, crawled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
    title = excluded.title,
    tags = excluded.tags,
    platforms = excluded.platforms,
    reviewer = excluded.reviewer,
    score = excluded.score,
    published_at = excluded.published_at,
    summary = excluded.summary,
    pros = excluded.pros,
    cons = excluded.cons,
    crawled_at = excluded.crawled_at`,
		review.ID, review.URL, review.Title, string(tags), string(platforms), review.Reviewer,
		review.Score, nullTime(review.PublishedAt), review.Summary, review.Pros, review.Cons,
		formatTime(review.CrawledAt),
	)
	if err != nil {
		return fmt.Errorf("保存评测失败 [%s]: %w", review.URL, err)
	}
	return nil
}

// Count 记录总数
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews").Scan(&n); err != nil {
		return 0, fmt.Errorf("统计记录失败: %w", err)
	}
	return n, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanReview 读取一行记录
func scanReview(rows *sql.Rows) (*models.Review, error) {
	var (
		r               models.Review
		tags, platforms string
		publishedAt     sql.NullString
		crawledAt       string
	)

	err := rows.Scan(&r.ID, &r.URL, &r.Title, &tags, &platforms, &r.Reviewer, &r.Score,
		&publishedAt, &r.Summary, &r.Pros, &r.Cons, &crawledAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("解析标签失败 [%s]: %w", r.URL, err)
	}
	if err := json.Unmarshal([]byte(platforms), &r.Platforms); err != nil {
		return nil, fmt.Errorf("解析平台失败 [%s]: %w", r.URL, err)
	}
	r.PublishedAt = parseTime(publishedAt.String)
	r.CrawledAt = parseTime(crawledAt)

	return &r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// nullTime 零值时间保存为NULL,区间比较时不会命中
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
