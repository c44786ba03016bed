package search

import "time"

// Config 检索引擎配置。
type Config struct {
	DefaultK         int           `json:"default_k"`
	MaxK             int           `json:"max_k"`
	DefaultNeighbors int           `json:"default_neighbors"`
	DefaultPerDoc    int           `json:"default_per_doc"`
	OverfetchFactor  int           `json:"overfetch_factor"` // 过采样倍数，≥2
	MinOverfetch     int           `json:"min_overfetch"`
	MaxPreviewChars  int           `json:"max_preview_chars"`
	UpstreamRetries  int           `json:"upstream_retries"` // 仅对瞬时网络错误生效
	RetryBackoff     time.Duration `json:"-"`
}

// DefaultConfig 默认配置。
func DefaultConfig() *Config {
	return &Config{
		DefaultK:         8,
		MaxK:             50,
		DefaultNeighbors: 2,
		DefaultPerDoc:    2,
		OverfetchFactor:  5,
		MinOverfetch:     50,
		MaxPreviewChars:  1800,
		UpstreamRetries:  2,
		RetryBackoff:     500 * time.Millisecond,
	}
}
