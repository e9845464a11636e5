package service

import (
	"rfx-assist-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, score float64, source string) model.ScoredDocument {
	return model.ScoredDocument{
		ID:    id,
		Score: score,
		Payload: &model.DocumentPayload{
			Source: source,
			Answer: "answer " + id,
		},
	}
}

func TestFilterEmptyInput(t *testing.T) {
	f := RelevanceFilter{Percentile: 75, Cutoff: 0.75}
	assert.Empty(t, f.Filter(nil))
	assert.Empty(t, f.Filter([]model.ScoredDocument{}))
}

func TestFilterCutoffGate(t *testing.T) {
	f := RelevanceFilter{Percentile: 75, Cutoff: 0.75}

	// 分位阈值低于 cutoff：即使有单条高分也全部丢弃
	docs := []model.ScoredDocument{
		doc("a", 0.95, "s1"),
		doc("b", 0.30, "s2"),
		doc("c", 0.20, "s3"),
		doc("d", 0.10, "s4"),
	}
	assert.Empty(t, f.Filter(docs))
}

func TestFilterKeepsStrictlyAboveThreshold(t *testing.T) {
	f := RelevanceFilter{Percentile: 75, Cutoff: 0.75}

	docs := []model.ScoredDocument{
		doc("a", 0.91, "s1"),
		doc("b", 0.85, "s2"),
		doc("c", 0.40, "s3"),
	}
	evidence := f.Filter(docs)

	// 阈值为 75 分位，等于阈值的分数不保留
	require.Len(t, evidence, 1)
	assert.Equal(t, "a", evidence[0].DocID)
}

func TestFilterDropsNilPayload(t *testing.T) {
	f := RelevanceFilter{Percentile: 50, Cutoff: 0.5}

	docs := []model.ScoredDocument{
		doc("a", 0.95, "s1"),
		{ID: "b", Score: 0.99, Payload: nil},
		doc("c", 0.60, "s2"),
	}
	evidence := f.Filter(docs)

	for _, e := range evidence {
		assert.NotEmpty(t, e.Payload.Source)
	}
	for _, e := range evidence {
		assert.NotEqual(t, "b", e.DocID)
	}
}

func TestFilterDedupLastWriteWins(t *testing.T) {
	f := RelevanceFilter{Percentile: 25, Cutoff: 0.75}

	// 25 分位命中整数下标，阈值取最低分 0.80，需不低于 cutoff
	first := doc("a", 0.95, "shared")
	second := doc("b", 0.90, "shared")
	second.Payload.Title = "updated title"
	other := doc("c", 0.92, "other")
	anchor := doc("d", 0.80, "anchor")

	evidence := f.Filter([]model.ScoredDocument{first, second, other, anchor})

	// 位置取首次出现，值取最后一次出现
	require.Len(t, evidence, 2)
	assert.Equal(t, "b", evidence[0].DocID)
	assert.Equal(t, "updated title", evidence[0].Payload.Title)
	assert.Equal(t, "c", evidence[1].DocID)
}

func TestFilterWholeIndexPercentileTakesRankValue(t *testing.T) {
	f := RelevanceFilter{Percentile: 25, Cutoff: 0.75}

	// 4 条文档的 25 分位下标是整数，阈值取排序后该位次的分数（最低分），
	// 而不是相邻两分的均值
	docs := []model.ScoredDocument{
		doc("a", 0.95, "s1"),
		doc("b", 0.92, "s2"),
		doc("c", 0.90, "s3"),
		doc("d", 0.80, "s4"),
	}
	evidence := f.Filter(docs)

	// 阈值 0.80 过线，严格大于阈值的三条保留，等于阈值的不保留
	require.Len(t, evidence, 3)
	assert.Equal(t, "a", evidence[0].DocID)
	assert.Equal(t, "b", evidence[1].DocID)
	assert.Equal(t, "c", evidence[2].DocID)

	// 最低分再降一档，阈值跌破截断线，整组丢弃
	docs[3] = doc("d", 0.70, "s4")
	assert.Empty(t, f.Filter(docs))
}

func TestFilterHigherPercentileNeverKeepsMore(t *testing.T) {
	docs := []model.ScoredDocument{
		doc("a", 0.95, "s1"),
		doc("b", 0.90, "s2"),
		doc("c", 0.85, "s3"),
		doc("d", 0.80, "s4"),
		doc("e", 0.78, "s5"),
	}
	low := RelevanceFilter{Percentile: 25, Cutoff: 0.75}.Filter(docs)
	high := RelevanceFilter{Percentile: 90, Cutoff: 0.75}.Filter(docs)
	assert.LessOrEqual(t, len(high), len(low))
}

func TestEvidenceTextsSkipsEmptyAnswers(t *testing.T) {
	evidence := []model.Evidence{
		{DocID: "a", Payload: model.DocumentPayload{Source: "s1", Answer: "text a"}},
		{DocID: "b", Payload: model.DocumentPayload{Source: "s2"}},
		{DocID: "c", Payload: model.DocumentPayload{Source: "s3", Answer: "text c"}},
	}
	assert.Equal(t, []string{"text a", "text c"}, EvidenceTexts(evidence))
}
