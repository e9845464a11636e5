package service

import (
	"rfx-assist-go/internal/model"

	"github.com/montanaflynn/stats"
)

// RelevanceFilter 将一组带分检索结果收敛为可信的证据集。
// 先以分数分位值作为阈值，分位值低于 Cutoff 时整组结果视为不相关；
// 否则保留分数严格大于阈值且载荷非空的文档，并按来源去重。
type RelevanceFilter struct {
	Percentile float64
	Cutoff     float64
}

// Filter 执行相关性过滤。没有证据是正常结果而非错误，
// 下游据此决定回退或短路。
func (f RelevanceFilter) Filter(documents []model.ScoredDocument) []model.Evidence {
	// 空输入直接返回：空集合的分位值没有定义
	if len(documents) == 0 {
		return nil
	}

	scores := make(stats.Float64Data, 0, len(documents))
	for _, doc := range documents {
		scores = append(scores, doc.Score)
	}
	threshold, err := stats.Percentile(scores, f.Percentile)
	if err != nil {
		return nil
	}

	// 全局相关性闸门：阈值本身不够高时，单条高分也不采信
	if threshold < f.Cutoff {
		return nil
	}

	// 按来源去重：位置取首次出现，值取最后一次出现（last-write-wins）。
	// 同源近重复文档以最后一条的标题/图片/幻灯片为准。
	indexBySource := make(map[string]int)
	evidence := make([]model.Evidence, 0, len(documents))
	for _, doc := range documents {
		if doc.Score <= threshold || doc.Payload == nil {
			continue
		}
		entry := model.Evidence{DocID: doc.ID, Payload: *doc.Payload}
		if idx, seen := indexBySource[doc.Payload.Source]; seen {
			evidence[idx] = entry
			continue
		}
		indexBySource[doc.Payload.Source] = len(evidence)
		evidence = append(evidence, entry)
	}
	return evidence
}

// EvidenceTexts 取出证据中的答案文本，用于拼装提示词。
func EvidenceTexts(evidence []model.Evidence) []string {
	texts := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if e.Payload.Answer != "" {
			texts = append(texts, e.Payload.Answer)
		}
	}
	return texts
}
