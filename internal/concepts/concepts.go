package concepts

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultAnswerConcepts = 10
	DefaultGraphConcepts  = 20
	minConceptLen         = 4
)

var (
	punctRe      = regexp.MustCompile(`[^\w\s-]`)
	capPhraseRe  = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
	hyphenTermRe = regexp.MustCompile(`\b([a-z]+-[a-z]+(?:-[a-z]+)*)\b`)
	acronymRe    = regexp.MustCompile(`\b([A-Z]{2,})\b`)
)

// Extract 从回答中抽取概念词：长度大于 3 且首字母大写或带连字符，按出现顺序去重
func Extract(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultAnswerConcepts
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, word := range strings.Fields(text) {
		w := punctRe.ReplaceAllString(word, "")
		if len([]rune(w)) < minConceptLen {
			continue
		}
		first := []rune(w)[0]
		if !unicode.IsUpper(first) && !strings.Contains(w, "-") {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FromText 抽取一段原文中的术语：大写短语、连字符术语、缩写。保留重复，用于统计频次。
func FromText(text string) []string {
	var out []string
	for _, m := range capPhraseRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	for _, m := range hyphenTermRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		out = append(out, m[1])
	}
	for _, m := range acronymRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	kept := out[:0]
	for _, c := range out {
		c = strings.TrimSpace(c)
		if len(c) >= minConceptLen {
			kept = append(kept, c)
		}
	}
	return kept
}

type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Size  int    `json:"size"`
	Type  string `json:"type"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BuildGraph 统计各分块中的术语，取频次最高的 limit 个作为节点，
// 同一分块内共同出现的术语之间连边，权重为共现分块数。
func BuildGraph(chunks []string, limit int) Graph {
	if limit <= 0 {
		limit = DefaultGraphConcepts
	}
	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	perChunk := make([][]string, len(chunks))
	for i, text := range chunks {
		terms := FromText(text)
		perChunk[i] = terms
		for _, t := range terms {
			if _, ok := firstSeen[t]; !ok {
				firstSeen[t] = len(firstSeen)
			}
			freq[t]++
		}
	}

	top := make([]string, 0, len(freq))
	for t := range freq {
		top = append(top, t)
	}
	sort.Slice(top, func(i, j int) bool {
		if freq[top[i]] != freq[top[j]] {
			return freq[top[i]] > freq[top[j]]
		}
		return firstSeen[top[i]] < firstSeen[top[j]]
	})
	if len(top) > limit {
		top = top[:limit]
	}
	inTop := make(map[string]struct{}, len(top))
	g := Graph{Nodes: make([]Node, 0, len(top)), Edges: []Edge{}}
	for _, t := range top {
		inTop[t] = struct{}{}
		g.Nodes = append(g.Nodes, Node{ID: t, Label: t, Size: freq[t], Type: "concept"})
	}

	edgeIdx := make(map[[2]string]int)
	for _, terms := range perChunk {
		uniq := dedupe(terms, inTop)
		for i := 0; i < len(uniq); i++ {
			for j := i + 1; j < len(uniq); j++ {
				a, b := uniq[i], uniq[j]
				key := [2]string{a, b}
				if b < a {
					key = [2]string{b, a}
				}
				if idx, ok := edgeIdx[key]; ok {
					g.Edges[idx].Weight++
					continue
				}
				edgeIdx[key] = len(g.Edges)
				g.Edges = append(g.Edges, Edge{Source: a, Target: b, Weight: 1})
			}
		}
	}
	return g
}

func dedupe(terms []string, allow map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := allow[t]; !ok {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
