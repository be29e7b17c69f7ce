package ingest

import (
	"regexp"
	"strings"
)

const (
	SectionAbstract     = "Abstract"
	SectionIntroduction = "Introduction"
	SectionMethods      = "Methods"
	SectionResults      = "Results"
	SectionDiscussion   = "Discussion"
	SectionConclusion   = "Conclusion"
	SectionReferences   = "References"
	SectionBody         = "Body"
)

// SummarizableSections 是 summarize_section 工具接受的枚举值
var SummarizableSections = []string{
	SectionAbstract,
	SectionIntroduction,
	SectionMethods,
	SectionResults,
	SectionDiscussion,
	SectionConclusion,
}

var sectionKeywords = []struct {
	section  string
	keywords []string
}{
	{SectionIntroduction, []string{"introduction"}},
	{SectionMethods, []string{"method", "approach", "architecture"}},
	{SectionResults, []string{"result", "experiment", "evaluation"}},
	{SectionDiscussion, []string{"discussion", "analysis"}},
	{SectionConclusion, []string{"conclusion", "summary"}},
	{SectionReferences, []string{"reference", "bibliography"}},
}

// 形如 "1 Introduction"、"3.2. Methods"、"IV. RESULTS" 的独立标题行
var headingRe = regexp.MustCompile(`^(?:(?:\d+(?:\.\d+)*|[IVX]+)\.?\s+)?([A-Za-z][A-Za-z ]{2,40})$`)

// SectionDetector 记住上一页的章节，没有标题的页面沿用上一个章节
type SectionDetector struct {
	current string
}

func NewSectionDetector() *SectionDetector {
	return &SectionDetector{}
}

// Detect 先找独立标题行（前两页的 Abstract 优先，否则取页内最后一个），找不到再按关键词猜测
func (d *SectionDetector) Detect(text string, pageIndex int) string {
	if s := headingSection(text, pageIndex); s != "" {
		d.current = s
		return s
	}
	if d.current != "" {
		return d.current
	}
	s := keywordSection(text, pageIndex)
	if s != SectionBody {
		d.current = s
	}
	return s
}

func headingSection(text string, pageIndex int) string {
	found := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		m := headingRe.FindStringSubmatch(line)
		if m == nil || len(strings.Fields(m[1])) > 4 {
			continue
		}
		s := canonicalSection(strings.TrimSpace(m[1]), pageIndex)
		if s == SectionAbstract {
			return s
		}
		if s != "" {
			found = s
		}
	}
	return found
}

func canonicalSection(heading string, pageIndex int) string {
	h := strings.ToLower(heading)
	if h == "abstract" {
		if pageIndex < 2 {
			return SectionAbstract
		}
		return ""
	}
	// 标题行必须以关键词开头，避免正文短句误判
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if strings.HasPrefix(h, kw) || strings.HasPrefix(h, "related "+kw) {
				return sk.section
			}
		}
	}
	return ""
}

func keywordSection(text string, pageIndex int) string {
	lower := strings.ToLower(text)
	if pageIndex < 2 && strings.Contains(lower, "abstract") {
		return SectionAbstract
	}
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				return sk.section
			}
		}
	}
	return SectionBody
}

// ShouldSkipSection References 不参与向量化
func ShouldSkipSection(section string) bool {
	return strings.EqualFold(section, SectionReferences)
}

// NormalizeSection 将用户/模型输入的章节名映射为标准写法，未知返回空串
func NormalizeSection(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "method", "methods", "methodology":
		return SectionMethods
	case "result", "results", "experiments":
		return SectionResults
	case "conclusion", "conclusions":
		return SectionConclusion
	}
	for _, s := range SummarizableSections {
		if strings.ToLower(s) == n {
			return s
		}
	}
	return ""
}
