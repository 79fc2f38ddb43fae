package storage

import (
	"context"
	"testing"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sample(url string, score float64, platforms, tags []string, published time.Time) *models.Review {
	r := models.NewReview(url)
	r.Title = "Review " + url
	r.Score = score
	r.Platforms = platforms
	r.Tags = tags
	r.PublishedAt = published
	r.CrawledAt = time.Now()
	return r
}

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2021, 3, d, 0, 0, 0, 0, time.UTC) }

	reviews := []*models.Review{
		sample("https://example.com/r/1", 9.0, []string{"PC"}, []string{"Action"}, day(1)),
		sample("https://example.com/r/2", 8.0, []string{"PC", "PS5"}, []string{"RPG"}, day(2)),
		sample("https://example.com/r/3", 7.5, []string{"PC"}, []string{"Action", "RPG"}, day(3)),
		sample("https://example.com/r/4", 6.0, []string{"PC"}, []string{"Puzzle"}, day(4)),
		sample("https://example.com/r/5", 9.5, []string{"Switch"}, []string{"Action"}, day(5)),
	}
	for _, r := range reviews {
		require.NoError(t, store.Save(ctx, r))
	}
}

func TestSQLiteStore_SaveUpsert(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	r := sample("https://example.com/r/1", 8.5, []string{"PC"}, []string{"Action"}, time.Time{})
	require.NoError(t, store.Save(ctx, r))

	r.Score = 9.0
	require.NoError(t, store.Save(ctx, r))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := store.Query(ctx, Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Reviews, 1)
	assert.Equal(t, 9.0, page.Reviews[0].Score)
	assert.Equal(t, []string{"Action"}, page.Reviews[0].Tags)
	assert.True(t, page.Reviews[0].PublishedAt.IsZero())
}

func TestSQLiteStore_SaveRejectsInvalid(t *testing.T) {
	store := setup(t)

	r := models.NewReview("https://example.com/r/1")
	assert.Error(t, store.Save(context.Background(), r), "缺少平台的记录不应保存")
}

func TestSQLiteStore_QueryOverFetch(t *testing.T) {
	store := setup(t)
	seed(t, store)

	page, err := store.Query(context.Background(), Query{
		Equals: map[string][]string{"platforms": {"PC"}},
		SortBy: "score",
		Desc:   true,
		Limit:  3,
	})
	require.NoError(t, err)

	require.Len(t, page.Reviews, 3)
	assert.True(t, page.HasMore, "4条匹配、分页大小3时应还有更多")
	assert.Equal(t, "https://example.com/r/1", page.Reviews[0].URL)
	assert.Equal(t, "https://example.com/r/3", page.Reviews[2].URL)

	last, err := store.Query(context.Background(), Query{
		Equals: map[string][]string{"platforms": {"PC"}},
		SortBy: "score",
		Desc:   true,
		Limit:  3,
		Offset: 3,
	})
	require.NoError(t, err)
	require.Len(t, last.Reviews, 1)
	assert.False(t, last.HasMore)
	assert.Equal(t, "https://example.com/r/4", last.Reviews[0].URL)
}

func TestSQLiteStore_QueryFilters(t *testing.T) {
	store := setup(t)
	seed(t, store)
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{
			name:  "标签多值",
			query: Query{Equals: map[string][]string{"tags": {"RPG", "Puzzle"}}, SortBy: "score"},
			want:  []string{"https://example.com/r/4", "https://example.com/r/3", "https://example.com/r/2"},
		},
		{
			name: "评分闭区间",
			query: Query{
				Range:  &RangeFilter{Field: "score", Lower: &Bound{Value: 8.0, Inclusive: true}, Upper: &Bound{Value: 9.0, Inclusive: true}},
				SortBy: "score",
			},
			want: []string{"https://example.com/r/2", "https://example.com/r/1"},
		},
		{
			name: "评分开区间",
			query: Query{
				Range:  &RangeFilter{Field: "score", Lower: &Bound{Value: 8.0}, Upper: &Bound{Value: 9.0}},
				SortBy: "score",
			},
			want: []string{},
		},
		{
			name: "日期下界与平台组合",
			query: Query{
				Equals: map[string][]string{"platforms": {"PC"}},
				Range:  &RangeFilter{Field: "published_at", Lower: &Bound{Value: time.Date(2021, 3, 3, 0, 0, 0, 0, time.UTC), Inclusive: true}},
				SortBy: "published_at",
			},
			want: []string{"https://example.com/r/3", "https://example.com/r/4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Limit = 10
			page, err := store.Query(ctx, tt.query)
			require.NoError(t, err)

			got := make([]string, 0, len(page.Reviews))
			for _, r := range page.Reviews {
				got = append(got, r.URL)
			}
			assert.Equal(t, tt.want, got)
			assert.False(t, page.HasMore)
		})
	}
}

func TestSQLiteStore_UndatedReviewOutsideDateRange(t *testing.T) {
	store := setup(t)
	seed(t, store)
	ctx := context.Background()

	undated := sample("https://example.com/r/6", 8.0, []string{"PC"}, []string{"Action"}, time.Time{})
	require.NoError(t, store.Save(ctx, undated))

	page, err := store.Query(ctx, Query{
		Range:  &RangeFilter{Field: "published_at", Upper: &Bound{Value: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}},
		SortBy: "published_at",
		Limit:  10,
	})
	require.NoError(t, err)

	got := make([]string, 0, len(page.Reviews))
	for _, r := range page.Reviews {
		got = append(got, r.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/r/1",
		"https://example.com/r/2",
		"https://example.com/r/3",
		"https://example.com/r/4",
		"https://example.com/r/5",
	}, got)

	// 不带区间时仍能读出,发布时间为零值
	all, err := store.Query(ctx, Query{Equals: map[string][]string{"url": {"https://example.com/r/6"}}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, all.Reviews, 1)
	assert.True(t, all.Reviews[0].PublishedAt.IsZero())
}

func TestSQLiteStore_QueryValidation(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
	}{
		{"分页大小为0", Query{}},
		{"负偏移", Query{Limit: 1, Offset: -1}},
		{"未知过滤字段", Query{Limit: 1, Equals: map[string][]string{"summary; DROP TABLE reviews": {"x"}}}},
		{"未知排序字段", Query{Limit: 1, SortBy: "pros"}},
		{"未知区间字段", Query{Limit: 1, Range: &RangeFilter{Field: "title"}}},
		{"区间值类型错误", Query{Limit: 1, Range: &RangeFilter{Field: "score", Lower: &Bound{Value: "8"}}}},
		{"零值日期边界", Query{Limit: 1, Range: &RangeFilter{Field: "published_at", Upper: &Bound{Value: time.Time{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Query(ctx, tt.query)
			assert.Error(t, err)
		})
	}
}
