package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertSpans 校验每个句子的 Text 与其 [Start, End) 原文切片一致。
func assertSpans(t *testing.T, text string, sentences []Sentence) {
	t.Helper()
	runes := []rune(text)
	for _, s := range sentences {
		require.GreaterOrEqual(t, s.Start, 0)
		require.Greater(t, s.End, s.Start)
		require.LessOrEqual(t, s.End, len(runes))
		assert.Equal(t, string(runes[s.Start:s.End]), s.Text)
	}
}

func TestSplitSentences_Basic(t *testing.T) {
	text := "This is sentence one. This is sentence two! And here's sentence three?"
	sentences := SplitSentences(text)

	require.Len(t, sentences, 3)
	assert.Equal(t, "This is sentence one.", sentences[0].Text)
	assert.Equal(t, "This is sentence two!", sentences[1].Text)
	assert.Equal(t, "And here's sentence three?", sentences[2].Text)
	assertSpans(t, text, sentences)
}

func TestSplitSentences_DecimalAndAbbreviation(t *testing.T) {
	sentences := SplitSentences("Pi is 3.14 exactly.")
	require.Len(t, sentences, 1)

	sentences = SplitSentences("Dr. Smith arrived. He sat down.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Dr. Smith arrived.", sentences[0].Text)
	assert.Equal(t, "He sat down.", sentences[1].Text)

	sentences = SplitSentences("Use a tool, e.g. a hammer. Then stop.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Use a tool, e.g. a hammer.", sentences[0].Text)
}

func TestSplitSentences_InitialsNotSplit(t *testing.T) {
	sentences := SplitSentences("J. K. Rowling wrote it.")
	require.Len(t, sentences, 1)
	assert.Equal(t, "J. K. Rowling wrote it.", sentences[0].Text)
}

func TestSplitSentences_CJK(t *testing.T) {
	text := "今天天气很好。我们去公园散步吧！你觉得怎么样？"
	sentences := SplitSentences(text)

	require.Len(t, sentences, 3)
	assert.Equal(t, "今天天气很好。", sentences[0].Text)
	assert.Equal(t, "我们去公园散步吧！", sentences[1].Text)
	assert.Equal(t, "你觉得怎么样？", sentences[2].Text)
	assertSpans(t, text, sentences)
}

func TestSplitSentences_ClosingQuoteAbsorbed(t *testing.T) {
	text := `He said "Stop!" Then he left.`
	sentences := SplitSentences(text)

	require.Len(t, sentences, 2)
	assert.Equal(t, `He said "Stop!"`, sentences[0].Text)
	assert.Equal(t, "Then he left.", sentences[1].Text)
	assertSpans(t, text, sentences)
}

func TestSplitSentences_Ellipsis(t *testing.T) {
	sentences := SplitSentences("Wait... what happened? Yes.")
	require.Len(t, sentences, 3)
	assert.Equal(t, "Wait...", sentences[0].Text)
	assert.Equal(t, "what happened?", sentences[1].Text)
	assert.Equal(t, "Yes.", sentences[2].Text)
}

func TestSplitSentences_TrailingWithoutTerminator(t *testing.T) {
	text := "First sentence. trailing bit"
	sentences := SplitSentences(text)

	require.Len(t, sentences, 2)
	assert.Equal(t, "trailing bit", sentences[1].Text)
	assertSpans(t, text, sentences)
}

func TestSplitSentences_Empty(t *testing.T) {
	assert.Empty(t, SplitSentences(""))
	assert.Empty(t, SplitSentences("   \n\n\t  "))
}
