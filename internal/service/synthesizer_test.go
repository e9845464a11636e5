package service

import (
	"context"
	"errors"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/llm"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeProducesRequestedVariants(t *testing.T) {
	client := &stubLLM{answer: "generated answer"}
	s := NewAnswerSynthesizer(client, 0.2)

	records, err := s.Synthesize(context.Background(), llm.Message{Role: "system", Content: "sys"}, "question", 3, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "generated answer", r.Text)
		assert.Equal(t, model.SenderAssistant, r.Sender)
	}
}

func TestSynthesizeStripsNewlines(t *testing.T) {
	client := &stubLLM{answer: "line one\nline two\nline three"}
	s := NewAnswerSynthesizer(client, 0.2)

	records, err := s.Synthesize(context.Background(), llm.Message{Role: "system"}, "q", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "line oneline twoline three", records[0].Text)
}

func TestSynthesizeSharesReferencesAcrossVariants(t *testing.T) {
	client := &stubLLM{answer: "a"}
	s := NewAnswerSynthesizer(client, 0.2)

	evidence := []model.Evidence{
		{DocID: "d1", Payload: model.DocumentPayload{Source: "s1", Title: "t1", Images: []string{"img1"}}},
		{DocID: "d2", Payload: model.DocumentPayload{Source: "s2", Title: "t2"}},
	}
	records, err := s.Synthesize(context.Background(), llm.Message{Role: "system"}, "q", 2, evidence)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Len(t, records[0].ReferenceLinks, 2)
	assert.Equal(t, records[0].ReferenceLinks, records[1].ReferenceLinks)
	assert.Equal(t, "d1", records[0].ReferenceLinks[0].ID)
	assert.Equal(t, "img1", records[0].ReferenceLinks[0].ImageURL)
}

func TestSynthesizeRejectsShortChoiceCount(t *testing.T) {
	// 服务方只返回 1 个候选而请求了 3 个：按生成失败处理，不返回部分结果
	client := &stubLLM{answer: "a", count: 1}
	s := NewAnswerSynthesizer(client, 0.2)

	records, err := s.Synthesize(context.Background(), llm.Message{Role: "system"}, "q", 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Nil(t, records)
}

func TestSynthesizeWrapsGenerationError(t *testing.T) {
	client := &stubLLM{err: errors.New("model unavailable")}
	s := NewAnswerSynthesizer(client, 0.2)

	_, err := s.Synthesize(context.Background(), llm.Message{Role: "system"}, "q", 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestSynthesizeAtLeastOneVariant(t *testing.T) {
	client := &stubLLM{answer: "a"}
	s := NewAnswerSynthesizer(client, 0.2)

	records, err := s.Synthesize(context.Background(), llm.Message{Role: "system"}, "q", 0, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
