package ingest

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 50
)

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

// Chunker 按句子切分后用词数窗口聚合，相邻分块共享末尾若干完整句子
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return Chunker{Size: size, Overlap: overlap}
}

func (c Chunker) Chunk(text string) []string {
	sentences := SplitSentences(text)
	var (
		chunks  []string
		current []string
		length  int
	)
	for _, s := range sentences {
		n := wordCount(s)
		if length+n > c.Size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = append(c.overlapTail(current), s)
			length = 0
			for _, cs := range current {
				length += wordCount(cs)
			}
			continue
		}
		current = append(current, s)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

func (c Chunker) overlapTail(sentences []string) []string {
	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := wordCount(sentences[i])
		if total+n > c.Overlap {
			break
		}
		total += n
		start = i
	}
	return append([]string(nil), sentences[start:]...)
}

// SplitSentences 换行视为空格，按句末标点 + 空白切分
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// 保留标点，丢弃其后的空白
		s := strings.TrimSpace(text[last : loc[0]+1])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
