package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"zhiwen-go/internal/model"
)

var plainTextTypes = map[string]struct{}{
	"text/plain":    {},
	"text/txt":      {},
	"text/markdown": {},
}

// PlainTextExtractor 直接读取纯文本文件。
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建纯文本抽取器。
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Name() string { return "plain_text" }

func (e *PlainTextExtractor) Supports(mediaType string) bool {
	_, ok := plainTextTypes[NormalizeMediaType(mediaType)]
	return ok
}

// Extract 读取全部内容。非 UTF-8 字节序列按 Latin-1 逐字节转码，
// 保证任何输入都能产出合法的 UTF-8 文本。
func (e *PlainTextExtractor) Extract(ctx context.Context, r io.Reader, fileName string) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", fileName, err)
	}

	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		text = string(runes)
	}

	if strings.TrimSpace(text) == "" {
		return Result{}, errors.New("empty text file")
	}

	return Result{
		Text: text,
		Metadata: model.JSONMap{
			"word_count":      countWords(text),
			"line_count":      len(strings.Split(text, "\n")),
			"file_size_bytes": len(data),
			"extractor":       e.Name(),
		},
	}, nil
}
