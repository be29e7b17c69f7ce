package vectorstore

import "sort"

type Scored struct {
	Hit
	// Score 为归一化后的置信度 [0,1]
	Score float64 `json:"score"`
}

// Rerank 对候选做词面重叠 + 向量相似度的混合打分，min-max 归一化后取前 topK。
// 所有候选得分相同时统一为 0.5。
func Rerank(query string, hits []Hit, topK int) []Scored {
	if len(hits) == 0 {
		return nil
	}
	qTerms := make(map[string]struct{})
	for _, t := range Tokenize(query) {
		qTerms[t] = struct{}{}
	}

	raw := make([]float64, len(hits))
	for i, h := range hits {
		overlap := 0.0
		if len(qTerms) > 0 {
			seen := make(map[string]struct{})
			for _, t := range Tokenize(h.Text) {
				if _, ok := qTerms[t]; ok {
					seen[t] = struct{}{}
				}
			}
			overlap = float64(len(seen)) / float64(len(qTerms))
		}
		raw[i] = 0.5*float64(h.Similarity) + 0.5*overlap
	}

	minS, maxS := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}

	out := make([]Scored, len(hits))
	for i, h := range hits {
		score := 0.5
		if maxS > minS {
			score = (raw[i] - minS) / (maxS - minS)
		}
		out[i] = Scored{Hit: h, Score: score}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Dedupe 按 chunk id 去重，保留相似度最高的一条，保持首次出现顺序
func Dedupe(hits []Hit) []Hit {
	idx := make(map[string]int, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if i, ok := idx[h.ID]; ok {
			if h.Similarity > out[i].Similarity {
				out[i] = h
			}
			continue
		}
		idx[h.ID] = len(out)
		out = append(out, h)
	}
	return out
}
