// Package tokenizer 提供文本的 token 计数能力，分块与嵌入预算都依赖它。
package tokenizer

import (
	"fmt"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"zhiwen-go/pkg/log"
)

// Counter 统计一段文本的 token 数。
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter 按编码名（如 cl100k_base）创建 BPE 计数器。
// 词表通过离线加载器内置，运行时不依赖外网。
func NewTiktokenCounter(encoding string) (Counter, error) {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("加载 tiktoken 编码 %s 失败: %w", encoding, err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter 创建 BPE 计数器，词表加载失败时降级为启发式估算。
func NewCounter(encoding string) Counter {
	c, err := NewTiktokenCounter(encoding)
	if err != nil {
		log.Warnf("[Tokenizer] 加载 BPE 词表失败, 降级为启发式估算: %v", err)
		return HeuristicCounter{}
	}
	return c
}

// HeuristicCounter 按"汉字每字约 1 token、其余每 4 字符约 1 token"估算。
type HeuristicCounter struct{}

// Count 返回估算的 token 数，非空文本至少为 1。
func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	han, other := 0, 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
		} else {
			other++
		}
	}
	n := han + (other+3)/4
	if n == 0 {
		n = 1
	}
	return n
}
