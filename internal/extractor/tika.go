package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"zhiwen-go/internal/model"
	"zhiwen-go/pkg/tika"
)

var tikaTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/html": {},
}

// TikaExtractor 通过 Apache Tika 服务器抽取 PDF 与 Office 文档的文本。
type TikaExtractor struct {
	client *tika.Client
}

// NewTikaExtractor 创建基于 Tika 的抽取器。
func NewTikaExtractor(client *tika.Client) *TikaExtractor {
	return &TikaExtractor{client: client}
}

func (e *TikaExtractor) Name() string { return "tika" }

func (e *TikaExtractor) Supports(mediaType string) bool {
	_, ok := tikaTypes[NormalizeMediaType(mediaType)]
	return ok
}

func (e *TikaExtractor) Extract(ctx context.Context, r io.Reader, fileName string) (Result, error) {
	text, err := e.client.ExtractText(ctx, r, "", fileName)
	if err != nil {
		return Result{}, fmt.Errorf("tika extract %s: %w", fileName, err)
	}

	if strings.TrimSpace(text) == "" {
		return Result{}, errors.New("no text content extracted")
	}

	return Result{
		Text: text,
		Metadata: model.JSONMap{
			"word_count": countWords(text),
			"extractor":  e.Name(),
		},
	}, nil
}

