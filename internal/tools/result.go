package tools

import (
	"encoding/json"
	"strings"
)

// Kind 区分工具输出的三种形态
type Kind string

const (
	KindDocumentList   Kind = "document_list"
	KindArtifactResult Kind = "artifact_result"
	KindPlainText      Kind = "plain_text"
)

// Artifact 生成文件的描述，创建后不再修改
type Artifact struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Name string `json:"name"`
}

// Record 是检索/摘要/外部搜索返回的一条结果
type Record struct {
	Content    string  `json:"content"`
	Source     string  `json:"source,omitempty"`
	PageNumber int     `json:"page_number,omitempty"`
	Section    string  `json:"section,omitempty"`
	PaperID    string  `json:"paper_id,omitempty"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Score      float64 `json:"score,omitempty"`

	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Published string `json:"published,omitempty"`
}

// Result 是所有工具统一的返回值，按 Kind 只填对应字段
type Result struct {
	Kind Kind `json:"kind"`

	Documents []Record `json:"documents,omitempty"`

	TextSummary string    `json:"text_summary,omitempty"`
	Artifact    *Artifact `json:"artifact,omitempty"`

	Text string `json:"text,omitempty"`
}

func DocumentList(records []Record) Result {
	if records == nil {
		records = []Record{}
	}
	return Result{Kind: KindDocumentList, Documents: records}
}

func ArtifactResult(summary string, artifact *Artifact) Result {
	return Result{Kind: KindArtifactResult, TextSummary: summary, Artifact: artifact}
}

func PlainText(text string) Result {
	return Result{Kind: KindPlainText, Text: text}
}

// Encode 序列化为工具消息内容
func (r Result) Encode() string {
	data, err := json.Marshal(r)
	if err != nil {
		return r.Text
	}
	return string(data)
}

// Content 返回适合拼接进上下文的纯文本
func (r Result) Content() string {
	switch r.Kind {
	case KindDocumentList:
		parts := make([]string, 0, len(r.Documents))
		for _, d := range r.Documents {
			parts = append(parts, d.Content)
		}
		return strings.Join(parts, "\n\n")
	case KindArtifactResult:
		return r.TextSummary
	default:
		return r.Text
	}
}

// Decode 解析工具消息内容。带 kind 标签的按标签分派；
// 没有标签的旧格式按形态识别：含 artifact 的对象、结果数组、其余视为纯文本。
func Decode(payload string) Result {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		var tagged Result
		if err := json.Unmarshal([]byte(trimmed), &tagged); err == nil {
			switch tagged.Kind {
			case KindDocumentList:
				if tagged.Documents == nil {
					tagged.Documents = []Record{}
				}
				return tagged
			case KindArtifactResult, KindPlainText:
				return tagged
			}
			if tagged.Kind == "" && tagged.Artifact != nil {
				return ArtifactResult(tagged.TextSummary, tagged.Artifact)
			}
		}
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			records := make([]Record, 0, len(items))
			for _, item := range items {
				var rec Record
				if err := json.Unmarshal(item, &rec); err != nil || rec.Content == "" {
					rec.Content = string(item)
				}
				records = append(records, rec)
			}
			return DocumentList(records)
		}
	}
	return PlainText(payload)
}
