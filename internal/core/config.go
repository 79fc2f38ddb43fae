package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/reviewcrawler/internal/crawlers"
	"github.com/RecoveryAshes/reviewcrawler/internal/extract"
	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/spf13/viper"
)

// 适配器类型
const (
	AdapterTypeDelay  = "delay"
	AdapterTypeScroll = "scroll"
)

// Config 应用程序配置
type Config struct {
	Browser  BrowserConfig     `mapstructure:"browser"`
	Adapters []AdapterConfig   `mapstructure:"adapters"`
	Fetch    FetchConfig       `mapstructure:"fetch"`
	Queue    QueueConfig       `mapstructure:"queue"`
	Extract  ExtractConfig     `mapstructure:"extract"`
	Storage  StorageConfig     `mapstructure:"storage"`
	Resource ResourceConfig    `mapstructure:"resource"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Output   OutputConfig      `mapstructure:"output"`
	Headers  map[string]string `mapstructure:"headers"`
	Sources  []string          `mapstructure:"sources"`
	Batch    BatchConfig       `mapstructure:"batch"`

	// 实际使用的配置文件路径(未找到时为空)
	File string `mapstructure:"-"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	BinPath       string        `mapstructure:"bin_path"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
}

// AdapterConfig 适配器类型到标识的映射及其参数
type AdapterConfig struct {
	Type string `mapstructure:"type"`
	Tag  string `mapstructure:"tag"`

	// delay
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// scroll
	InitialMarker    string        `mapstructure:"initial_marker"`
	LoadMoreSelector string        `mapstructure:"load_more_selector"`
	OrdinalSelector  string        `mapstructure:"ordinal_selector"`
	OrdinalAttr      string        `mapstructure:"ordinal_attr"`
	OrdinalMarker    string        `mapstructure:"ordinal_marker"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
}

// FetchConfig 普通抓取配置
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	Burst         int           `mapstructure:"burst"`
	Workers       int           `mapstructure:"workers"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
}

// QueueConfig 请求队列配置
type QueueConfig struct {
	Priority string `mapstructure:"priority"` // fifo | continuation_first
}

// ExtractConfig 提取配置
type ExtractConfig struct {
	ListingTag      string            `mapstructure:"listing_tag"`
	ReviewTag       string            `mapstructure:"review_tag"`
	GenreTag        string            `mapstructure:"genre_tag"`
	Hop2Failure     string            `mapstructure:"hop2_failure"`
	MaxListingPages int               `mapstructure:"max_listing_pages"`
	Selectors       extract.Selectors `mapstructure:"selectors"`
	DateLayouts     []string          `mapstructure:"date_layouts"`
	ScoreMin        float64           `mapstructure:"score_min"`
	ScoreMax        float64           `mapstructure:"score_max"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ResourceConfig 资源感知的worker数量
type ResourceConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	SafetyReserveMB  int64   `mapstructure:"safety_reserve_mb"`
	WorkerMemoryMB   int64   `mapstructure:"worker_memory_mb"`
	CPULoadThreshold float64 `mapstructure:"cpu_load_threshold"`
	MaxWorkers       int     `mapstructure:"max_workers"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	Progress bool   `mapstructure:"progress"`
}

// BatchConfig 多个列表源的批量配置
type BatchConfig struct {
	Delay           time.Duration `mapstructure:"delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
}

// LoadConfig 加载配置文件,未找到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".reviewcrawler"))
		}
	}

	v.SetEnvPrefix("REVIEWCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	config.File = v.ConfigFileUsed()

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.launch_timeout", "60s")

	v.SetDefault("adapters", []map[string]any{
		{
			"type":      AdapterTypeDelay,
			"tag":       "delay",
			"min_delay": "1s",
			"max_delay": "3s",
		},
		{
			"type":               AdapterTypeScroll,
			"tag":                "scroll",
			"initial_marker":     ".review-item",
			"load_more_selector": ".load-more",
			"ordinal_selector":   "[data-page]",
			"ordinal_attr":       "data-page",
			"ordinal_marker":     `[data-page="%d"]`,
			"wait_timeout":       "15s",
		},
	})

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_delay", "2s")
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.skip_tls_verify", false)

	v.SetDefault("queue.priority", string(crawlers.QueueFIFO))

	v.SetDefault("extract.listing_tag", "scroll")
	v.SetDefault("extract.review_tag", "delay")
	v.SetDefault("extract.genre_tag", "")
	v.SetDefault("extract.hop2_failure", string(extract.Hop2Keep))
	v.SetDefault("extract.max_listing_pages", 0)
	v.SetDefault("extract.score_min", 0.0)
	v.SetDefault("extract.score_max", 10.0)
	v.SetDefault("extract.selectors.listing_item", ".review-item")
	v.SetDefault("extract.selectors.listing_link", "a")
	v.SetDefault("extract.selectors.load_more", ".load-more")
	v.SetDefault("extract.selectors.title", "h1")
	v.SetDefault("extract.selectors.platforms", ".review-platform")
	v.SetDefault("extract.selectors.score", ".review-score")
	v.SetDefault("extract.selectors.reviewer", ".review-author")
	v.SetDefault("extract.selectors.published_at", "time")
	v.SetDefault("extract.selectors.summary", ".review-summary")
	v.SetDefault("extract.selectors.pros", ".review-pros")
	v.SetDefault("extract.selectors.cons", ".review-cons")
	v.SetDefault("extract.selectors.hop2_link", "a.game-sheet")
	v.SetDefault("extract.selectors.tags", ".game-genre")

	v.SetDefault("storage.path", "output/reviews.db")

	v.SetDefault("resource.enabled", true)
	v.SetDefault("resource.safety_reserve_mb", 512)
	v.SetDefault("resource.worker_memory_mb", 50)
	v.SetDefault("resource.cpu_load_threshold", 80.0)
	v.SetDefault("resource.max_workers", 16)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.progress", true)

	v.SetDefault("batch.delay", "0s")
	v.SetDefault("batch.continue_on_error", true)
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return &models.ConfigError{FilePath: c.File, Cause: err}
	}
	return nil
}

func (c *Config) validate() error {
	tags := make(map[string]string, len(c.Adapters))
	for i, a := range c.Adapters {
		if a.Tag == "" {
			return fmt.Errorf("adapters[%d]: 标识不能为空", i)
		}
		if _, dup := tags[a.Tag]; dup {
			return fmt.Errorf("adapters[%d]: 标识重复: %s", i, a.Tag)
		}
		tags[a.Tag] = a.Type

		switch a.Type {
		case AdapterTypeDelay:
			if a.MinDelay < 0 || a.MinDelay > a.MaxDelay {
				return fmt.Errorf("adapters[%d]: min_delay(%v) 不能大于 max_delay(%v)", i, a.MinDelay, a.MaxDelay)
			}
		case AdapterTypeScroll:
			if a.InitialMarker == "" || a.LoadMoreSelector == "" || a.OrdinalSelector == "" {
				return fmt.Errorf("adapters[%d]: 滚动适配器缺少标记选择器", i)
			}
			if strings.Count(a.OrdinalMarker, "%d") != 1 {
				return fmt.Errorf("adapters[%d]: ordinal_marker必须包含且仅包含一个%%d", i)
			}
			if a.WaitTimeout <= 0 {
				return fmt.Errorf("adapters[%d]: wait_timeout必须大于0", i)
			}
		default:
			return fmt.Errorf("adapters[%d]: 未知的适配器类型: %s", i, a.Type)
		}
	}

	if c.Extract.ListingTag == "" {
		return fmt.Errorf("extract.listing_tag不能为空")
	}
	if tags[c.Extract.ListingTag] != AdapterTypeScroll {
		return fmt.Errorf("extract.listing_tag必须指向滚动适配器: %s", c.Extract.ListingTag)
	}
	for name, tag := range map[string]string{"review_tag": c.Extract.ReviewTag, "genre_tag": c.Extract.GenreTag} {
		if tag == "" {
			continue
		}
		if _, ok := tags[tag]; !ok {
			return fmt.Errorf("extract.%s引用了不存在的适配器: %s", name, tag)
		}
	}

	switch extract.Hop2Policy(c.Extract.Hop2Failure) {
	case extract.Hop2Keep, extract.Hop2Discard:
	default:
		return fmt.Errorf("extract.hop2_failure必须为keep或discard: %s", c.Extract.Hop2Failure)
	}
	if c.Extract.ScoreMax <= c.Extract.ScoreMin {
		return fmt.Errorf("评分范围无效: [%v, %v]", c.Extract.ScoreMin, c.Extract.ScoreMax)
	}

	if c.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers必须大于0")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries不能为负数")
	}

	switch crawlers.QueueMode(c.Queue.Priority) {
	case crawlers.QueueFIFO, crawlers.QueueContinuationFirst:
	default:
		return fmt.Errorf("queue.priority必须为fifo或continuation_first: %s", c.Queue.Priority)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path不能为空")
	}
	return nil
}

// BuildAdapters 按配置顺序创建适配器
func (c *Config) BuildAdapters() ([]crawlers.Adapter, error) {
	adapters := make([]crawlers.Adapter, 0, len(c.Adapters))

	for _, a := range c.Adapters {
		tag := models.AdapterTag(a.Tag)

		switch a.Type {
		case AdapterTypeDelay:
			adapter, err := crawlers.NewDelayAdapter(crawlers.DelayAdapterConfig{
				Tag:      tag,
				MinDelay: a.MinDelay,
				MaxDelay: a.MaxDelay,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)

		case AdapterTypeScroll:
			adapter, err := crawlers.NewScrollAdapter(crawlers.ScrollAdapterConfig{
				Tag:              tag,
				InitialMarker:    a.InitialMarker,
				LoadMoreSelector: a.LoadMoreSelector,
				OrdinalSelector:  a.OrdinalSelector,
				OrdinalAttr:      a.OrdinalAttr,
				OrdinalMarker:    a.OrdinalMarker,
				WaitTimeout:      a.WaitTimeout,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)

		default:
			return nil, fmt.Errorf("未知的适配器类型: %s", a.Type)
		}
	}

	return adapters, nil
}

// FetcherConfig 普通抓取参数
func (c *Config) FetcherConfig() crawlers.FetchConfig {
	return crawlers.FetchConfig{
		Timeout:       c.Fetch.Timeout,
		Retries:       c.Fetch.Retries,
		RetryDelay:    c.Fetch.RetryDelay,
		RateLimit:     c.Fetch.RateLimit,
		Burst:         c.Fetch.Burst,
		Parallelism:   c.Fetch.Workers,
		RespectRobots: c.Fetch.RespectRobots,
		SkipTLSVerify: c.Fetch.SkipTLSVerify,
	}
}

// ExtractorConfig 提取器参数
func (c *Config) ExtractorConfig() extract.Config {
	return extract.Config{
		ListingTag:      models.AdapterTag(c.Extract.ListingTag),
		ReviewTag:       models.AdapterTag(c.Extract.ReviewTag),
		GenreTag:        models.AdapterTag(c.Extract.GenreTag),
		Hop2Failure:     extract.Hop2Policy(c.Extract.Hop2Failure),
		MaxListingPages: c.Extract.MaxListingPages,
	}
}

// TemplateConfig 站点模板参数
func (c *Config) TemplateConfig() extract.TemplateConfig {
	return extract.TemplateConfig{
		Selectors:   c.Extract.Selectors,
		DateLayouts: c.Extract.DateLayouts,
		ScoreMin:    c.Extract.ScoreMin,
		ScoreMax:    c.Extract.ScoreMax,
	}
}

// PoolSize 普通抓取worker数量: min(配置值, 资源建议值)
func (c *Config) PoolSize() int {
	if !c.Resource.Enabled {
		return c.Fetch.Workers
	}

	const mb = 1024 * 1024
	monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: c.Resource.SafetyReserveMB * mb,
		WorkerMemoryUsage:   c.Resource.WorkerMemoryMB * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxWorkers:          c.Resource.MaxWorkers,
	})
	return monitor.SuggestWorkers(c.Fetch.Workers)
}

// MergeCLIFlags 合并命令行参数到配置(仅覆盖显式设置的值)
func (c *Config) MergeCLIFlags(workers int, headless *bool, logLevel string, outputDir string, storagePath string) {
	if workers > 0 {
		c.Fetch.Workers = workers
	}
	if headless != nil {
		c.Browser.Headless = *headless
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if outputDir != "" {
		c.Output.BaseDir = outputDir
	}
	if storagePath != "" {
		c.Storage.Path = storagePath
	}
}
