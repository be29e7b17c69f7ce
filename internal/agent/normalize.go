package agent

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

const (
	sourceCodeExecution = "execute_code"
	sourceToolOutput    = "tool_output"
)

// round 是一轮工具输出按标签解析后的结果
type round struct {
	raw       string
	documents []Document
	artifacts []tools.Artifact
}

func (r round) hasArtifact() bool {
	return len(r.artifacts) > 0
}

// normalizeRound 解析本轮所有工具消息。相同输入总是得到相同的文档列表。
func normalizeRound(outputs []*schema.Message) round {
	var r round
	raws := make([]string, 0, len(outputs))
	for _, msg := range outputs {
		raws = append(raws, msg.Content)
		res := tools.Decode(msg.Content)
		switch res.Kind {
		case tools.KindArtifactResult:
			doc := Document{
				Content:  res.TextSummary,
				Metadata: DocumentMetadata{Source: sourceCodeExecution},
			}
			if res.Artifact != nil {
				a := *res.Artifact
				r.artifacts = append(r.artifacts, a)
				doc.Metadata.Artifact = &a
			}
			r.documents = append(r.documents, doc)
		case tools.KindDocumentList:
			for _, rec := range res.Documents {
				r.documents = append(r.documents, documentFromRecord(rec))
			}
		default:
			source := sourceToolOutput
			if msg.ToolName != "" {
				source = msg.ToolName
			}
			r.documents = append(r.documents, Document{
				Content:  res.Text,
				Metadata: DocumentMetadata{Source: source},
			})
		}
	}
	r.raw = strings.Join(raws, "\n\n")
	return r
}

func documentFromRecord(rec tools.Record) Document {
	return Document{
		Content: rec.Content,
		Metadata: DocumentMetadata{
			Source:     rec.Source,
			PageNumber: rec.PageNumber,
			Section:    rec.Section,
			PaperID:    rec.PaperID,
			ChunkID:    rec.ChunkID,
			Score:      rec.Score,
			Title:      rec.Title,
			URL:        rec.URL,
			Published:  rec.Published,
		},
	}
}

// toolFacts 拼接本次运行中所有工具消息的内容，作为幻觉评分的事实集合
func toolFacts(messages []*schema.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == schema.Tool && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
