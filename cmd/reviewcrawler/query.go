package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/RecoveryAshes/reviewcrawler/internal/storage"
	"github.com/spf13/cobra"
)

// 查询参数
var (
	queryPlatforms []string
	queryTags      []string
	queryReviewer  string
	queryScoreMin  float64
	queryScoreMax  float64
	querySort      string
	queryDesc      bool
	queryLimit     int
	queryOffset    int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "分页查询已保存的评测",
	Long: `按平台、标签、评测者和评分区间查询已保存的评测,输出JSON。

示例:
  reviewcrawler query --platform PC --tag Action --score-min 8 --sort score --desc --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hasMin := cmd.Flags().Changed("score-min")
		hasMax := cmd.Flags().Changed("score-max")

		if err := ValidateQueryFlags(queryLimit, queryOffset, queryScoreMin, queryScoreMax, hasMin, hasMax); err != nil {
			return err
		}

		q := buildQuery(hasMin, hasMax)

		store, err := storage.Open(appConfig.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		page, err := store.Query(context.Background(), q)
		if err != nil {
			return fmt.Errorf("查询失败: %w", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(page)
	},
}

// buildQuery 将命令行参数转换为查询条件
func buildQuery(hasMin, hasMax bool) storage.Query {
	q := storage.Query{
		Equals: make(map[string][]string),
		SortBy: querySort,
		Desc:   queryDesc,
		Offset: queryOffset,
		Limit:  queryLimit,
	}

	if len(queryPlatforms) > 0 {
		q.Equals["platforms"] = queryPlatforms
	}
	if len(queryTags) > 0 {
		q.Equals["tags"] = queryTags
	}
	if queryReviewer != "" {
		q.Equals["reviewer"] = []string{queryReviewer}
	}

	if hasMin || hasMax {
		q.Range = &storage.RangeFilter{Field: "score"}
		if hasMin {
			q.Range.Lower = &storage.Bound{Value: queryScoreMin, Inclusive: true}
		}
		if hasMax {
			q.Range.Upper = &storage.Bound{Value: queryScoreMax, Inclusive: true}
		}
	}

	return q
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryPlatforms, "platform", nil, "平台,可多次指定(匹配任意一个)")
	queryCmd.Flags().StringSliceVar(&queryTags, "tag", nil, "分类标签,可多次指定(匹配任意一个)")
	queryCmd.Flags().StringVar(&queryReviewer, "reviewer", "", "评测者")
	queryCmd.Flags().Float64Var(&queryScoreMin, "score-min", 0, "最低评分(包含)")
	queryCmd.Flags().Float64Var(&queryScoreMax, "score-max", 0, "最高评分(包含)")
	queryCmd.Flags().StringVar(&querySort, "sort", "crawled_at", "排序字段 (score|published_at|title|crawled_at)")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "降序排列")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 20, "分页大小")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "偏移量")
}
