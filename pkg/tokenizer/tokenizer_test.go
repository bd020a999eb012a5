package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokenCounter(t *testing.T) {
	c, err := NewTiktokenCounter("cl100k_base")
	require.NoError(t, err)

	assert.Equal(t, 0, c.Count(""))
	// cl100k_base 将 "hello world" 编码为 ["hello", " world"] 两个 token
	assert.Equal(t, 2, c.Count("hello world"))

	long := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	short := "The quick brown fox."
	assert.Greater(t, c.Count(long), c.Count(short))
}

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("a"))
	// 8 个 ASCII 字符按 4 字符 1 token 估算
	assert.Equal(t, 2, c.Count("abcdefgh"))
	// 汉字逐字计数
	assert.Equal(t, 4, c.Count("知识问答"))
	// 混合文本：4 个汉字 + 5 个 ASCII 字符（含空格）
	assert.Equal(t, 6, c.Count("知识问答 demo"))
}

func TestNewCounterFallsBackGracefully(t *testing.T) {
	// 合法编码直接可用
	c := NewCounter("cl100k_base")
	assert.Greater(t, c.Count("hello"), 0)

	// 非法编码降级为启发式估算而不是崩溃
	fallback := NewCounter("no-such-encoding")
	assert.IsType(t, HeuristicCounter{}, fallback)
	assert.Greater(t, fallback.Count("hello"), 0)
}
