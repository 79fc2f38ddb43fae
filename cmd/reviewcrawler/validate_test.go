package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name      string
		targetURL string
		urlFile   string
		workers   int
		wantErr   bool
	}{
		{"有效URL", "https://example.com/analisis", "", 4, false},
		{"使用配置的并发数", "https://example.com/analisis", "", 0, false},
		{"只使用URL文件", "", "sources.txt", 2, false},
		{"同时指定URL和文件", "https://example.com", "sources.txt", 2, true},
		{"非HTTP协议", "ftp://example.com", "", 2, true},
		{"并发数过大", "https://example.com", "", 101, true},
		{"并发数为负", "https://example.com", "", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.targetURL, tt.urlFile, tt.workers)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQueryFlags(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		offset   int
		min, max float64
		hasMin   bool
		hasMax   bool
		wantErr  bool
	}{
		{"默认参数", 20, 0, 0, 0, false, false, false},
		{"评分区间", 10, 3, 7, 9, true, true, false},
		{"只有下限", 10, 0, 9.5, 0, true, false, false},
		{"分页大小为0", 0, 0, 0, 0, false, false, true},
		{"偏移量为负", 10, -1, 0, 0, false, false, true},
		{"区间颠倒", 10, 0, 9, 7, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryFlags(tt.limit, tt.offset, tt.min, tt.max, tt.hasMin, tt.hasMax)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQueryFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	content := "# 列表源\nhttps://a.example.com/analisis\n\nhttps://b.example.com/analisis\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	configured := []string{"https://c.example.com/analisis"}

	sources, err := resolveSources("https://x.example.com", path, configured)
	if err != nil || len(sources) != 1 || sources[0] != "https://x.example.com" {
		t.Errorf("-u 应优先: %v, %v", sources, err)
	}

	sources, err = resolveSources("", path, configured)
	if err != nil || len(sources) != 2 {
		t.Errorf("应读取URL文件: %v, %v", sources, err)
	}

	sources, err = resolveSources("", "", configured)
	if err != nil || len(sources) != 1 {
		t.Errorf("应使用配置文件中的列表源: %v, %v", sources, err)
	}

	if _, err := resolveSources("", "", []string{"not-a-url"}); err == nil {
		t.Error("无效的配置列表源应返回错误")
	}
}

func TestBuildQuery(t *testing.T) {
	queryPlatforms = []string{"PC"}
	queryTags = []string{"Action", "RPG"}
	queryReviewer = ""
	queryScoreMin = 8
	queryLimit = 10
	queryOffset = 0
	querySort = "score"
	queryDesc = true

	q := buildQuery(true, false)

	if len(q.Equals["platforms"]) != 1 || len(q.Equals["tags"]) != 2 {
		t.Errorf("等值过滤错误: %v", q.Equals)
	}
	if _, ok := q.Equals["reviewer"]; ok {
		t.Error("未指定评测者时不应过滤")
	}
	if q.Range == nil || q.Range.Lower == nil || q.Range.Upper != nil {
		t.Fatalf("评分区间错误: %+v", q.Range)
	}
	if q.Range.Lower.Value != 8.0 || !q.Range.Lower.Inclusive {
		t.Errorf("下限错误: %+v", q.Range.Lower)
	}
}
