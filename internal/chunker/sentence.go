// Package chunker 将抽取出的文档文本切分为带重叠的、以 token 计量的分块。
package chunker

import (
	"strings"
	"unicode"
)

// Sentence 是切分出的一个句子及其在原文中的位置。
// Start/End 为 rune 偏移，End 不含；Text 为 [Start, End) 的原文切片。
type Sentence struct {
	Text  string
	Start int
	End   int
}

// 常见英文缩写，句点跟在其后时不视为句子边界。
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "fig": {}, "no": {}, "vol": {}, "inc": {},
	"ltd": {}, "co": {}, "dept": {}, "approx": {}, "est": {},
	"e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// SplitSentences 将文本切分为句子序列。
// 支持中英文终止符；英文句点带缩写、小数、人名缩写守卫；
// 终止符后的右引号、右括号归入当前句；末尾无终止符的文本作为最后一句。
func SplitSentences(text string) []Sentence {
	runes := []rune(text)
	n := len(runes)

	var sentences []Sentence
	start := -1
	for i := 0; i < n; i++ {
		r := runes[i]
		if start == -1 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}

		if !isTerminator(r) {
			continue
		}
		// 终止符连写（"..."、"？！"）只在最后一个处断句
		if i+1 < n && isTerminator(runes[i+1]) {
			continue
		}
		if isASCIITerminator(r) && !isASCIIBoundary(runes, i) {
			continue
		}

		end := i + 1
		for end < n && isClosing(runes[end]) {
			end++
		}
		sentences = append(sentences, Sentence{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		start = -1
		i = end - 1
	}

	// 末尾无终止符的残句
	if start != -1 {
		tail := strings.TrimRightFunc(string(runes[start:n]), unicode.IsSpace)
		if tail != "" {
			sentences = append(sentences, Sentence{
				Text:  tail,
				Start: start,
				End:   start + len([]rune(tail)),
			})
		}
	}
	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}

func isASCIITerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isClosing 判断终止符后应归入当前句的右侧成对符号。
func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '）', '】', '》', '」', '』':
		return true
	}
	return false
}

// isASCIIBoundary 判断位于 i 处的 ASCII 终止符是否构成句子边界。
func isASCIIBoundary(runes []rune, i int) bool {
	r := runes[i]

	// 终止符后必须是文本末尾、空白或右侧成对符号
	if i+1 < len(runes) {
		next := runes[i+1]
		if !unicode.IsSpace(next) && !isClosing(next) {
			return false
		}
	}

	if r != '.' {
		return true
	}

	// 小数："3.14"
	if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}

	// 句点前的词：缩写或单字母人名缩写不断句
	word := wordBefore(runes, i)
	if word == "" {
		return true
	}
	if len([]rune(word)) == 1 && unicode.IsUpper([]rune(word)[0]) {
		return false
	}
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return false
	}
	return true
}

// wordBefore 返回紧邻 i 处句点之前的词，允许词内句点（"e.g"）。
func wordBefore(runes []rune, i int) string {
	j := i
	for j > 0 {
		prev := runes[j-1]
		if unicode.IsLetter(prev) || prev == '.' {
			j--
			continue
		}
		break
	}
	if j == i {
		return ""
	}
	return strings.TrimSuffix(string(runes[j:i]), ".")
}
