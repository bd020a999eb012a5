// Package extractor 将原始文件内容抽取为纯文本，供分块与嵌入使用。
package extractor

import (
	"context"
	"io"
	"strings"

	"zhiwen-go/internal/model"
)

// Result 是一次抽取的产出：纯文本与抽取元数据（字数、页数等）。
type Result struct {
	Text     string
	Metadata model.JSONMap
}

// Extractor 负责抽取某一类媒体类型的文本。
type Extractor interface {
	Name() string
	Supports(mediaType string) bool
	Extract(ctx context.Context, r io.Reader, fileName string) (Result, error)
}

// Registry 持有按优先级排列的抽取器列表，取第一个支持该媒体类型的。
type Registry struct {
	extractors []Extractor
}

// NewRegistry 按给定顺序注册抽取器。
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Find 返回第一个支持 mediaType 的抽取器。
func (r *Registry) Find(mediaType string) (Extractor, bool) {
	normalized := NormalizeMediaType(mediaType)
	for _, e := range r.extractors {
		if e.Supports(normalized) {
			return e, true
		}
	}
	return nil, false
}

// NormalizeMediaType 去掉参数并统一小写："text/plain; charset=utf-8" → "text/plain"。
func NormalizeMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
