package chunker

import (
	"strings"

	"zhiwen-go/internal/config"
	"zhiwen-go/pkg/tokenizer"
)

// 默认的分块 token 预算。
const (
	DefaultTargetTokens  = 750
	DefaultMinTokens     = 500
	DefaultMaxTokens     = 1000
	DefaultOverlapTokens = 100
)

// Chunk 是一个分块草稿：尚未落库，只含切分结果本身。
// StartChar/EndChar 为原文中的 rune 偏移，相邻分块因重叠而区间相交。
type Chunk struct {
	Index         int
	Text          string
	TokenCount    int
	StartChar     int
	EndChar       int
	SentenceCount int
}

// Chunker 按句子边界把文本打包为 token 受控的分块。
type Chunker struct {
	target  int
	min     int
	max     int
	overlap int
	counter tokenizer.Counter
}

// NewChunker 创建分块器，cfg 中非正的预算字段回落到默认值。
func NewChunker(cfg config.ChunkConfig, counter tokenizer.Counter) *Chunker {
	c := &Chunker{
		target:  cfg.TargetTokens,
		min:     cfg.MinTokens,
		max:     cfg.MaxTokens,
		overlap: cfg.OverlapTokens,
		counter: counter,
	}
	if c.target <= 0 {
		c.target = DefaultTargetTokens
	}
	if c.min <= 0 {
		c.min = DefaultMinTokens
	}
	if c.max <= 0 {
		c.max = DefaultMaxTokens
	}
	if c.overlap <= 0 {
		c.overlap = DefaultOverlapTokens
	}
	return c
}

type bufEntry struct {
	sent Sentence
	tok  int
}

// Chunk 将文本切分为有序分块，索引从 0 连续编号。
//
// 打包规则：句子依次进入缓冲区；加入下一句会超过硬上限且缓冲区已达
// 硬下限时先封块；缓冲区达到目标大小时封块。封块后把上一块尾部
// 不超过重叠预算的整句带入下一块开头。句子永远不会被截断：单句超过
// 硬上限时整句独立成块。收尾时不足硬下限的新句并入上一块，
// 仅由重叠句构成的残留缓冲区直接丢弃。
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks        []Chunk
		buf           []bufEntry
		bufTokens     int
		newSinceFlush int
	)

	flush := func() {
		chunks = append(chunks, c.build(len(chunks), buf))
		tail, tailTokens := c.overlapTail(buf)
		buf = tail
		bufTokens = tailTokens
		newSinceFlush = 0
	}

	for _, sent := range sentences {
		tok := c.counter.Count(sent.Text)

		if len(buf) > 0 && bufTokens+tok > c.max && bufTokens >= c.min {
			flush()
		}

		buf = append(buf, bufEntry{sent: sent, tok: tok})
		bufTokens += tok
		newSinceFlush++

		if bufTokens >= c.target {
			flush()
		}
	}

	// 残留缓冲区只剩重叠句时，这些句子已经完整存在于上一块中
	if newSinceFlush == 0 {
		return chunks
	}

	if bufTokens >= c.min || len(chunks) == 0 {
		chunks = append(chunks, c.build(len(chunks), buf))
		return chunks
	}

	// 不足下限的尾部新句并入上一块，重叠前缀不再重复写入
	last := &chunks[len(chunks)-1]
	fresh := buf[len(buf)-newSinceFlush:]
	parts := make([]string, 0, len(fresh)+1)
	parts = append(parts, last.Text)
	for _, e := range fresh {
		parts = append(parts, e.sent.Text)
	}
	last.Text = strings.Join(parts, " ")
	last.TokenCount = c.counter.Count(last.Text)
	last.EndChar = fresh[len(fresh)-1].sent.End
	last.SentenceCount += len(fresh)
	return chunks
}

func (c *Chunker) build(index int, buf []bufEntry) Chunk {
	texts := make([]string, len(buf))
	for i, e := range buf {
		texts[i] = e.sent.Text
	}
	text := strings.Join(texts, " ")
	return Chunk{
		Index:         index,
		Text:          text,
		TokenCount:    c.counter.Count(text),
		StartChar:     buf[0].sent.Start,
		EndChar:       buf[len(buf)-1].sent.End,
		SentenceCount: len(buf),
	}
}

// overlapTail 从缓冲区尾部取出总 token 数不超过重叠预算的整句。
func (c *Chunker) overlapTail(buf []bufEntry) ([]bufEntry, int) {
	if c.overlap <= 0 || len(buf) == 0 {
		return nil, 0
	}
	total := 0
	i := len(buf)
	for i > 0 {
		if total+buf[i-1].tok > c.overlap {
			break
		}
		total += buf[i-1].tok
		i--
	}
	tail := make([]bufEntry, len(buf)-i)
	copy(tail, buf[i:])
	return tail, total
}
