package service

import (
	"context"
	"fmt"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/llm"
	"strings"
)

// AnswerSynthesizer 调用大模型生成候选答案。一次请求生成 n 个候选，
// 全部候选共享同一份按证据构建的引用列表。
type AnswerSynthesizer struct {
	llmClient   llm.Client
	temperature float64
}

// NewAnswerSynthesizer 创建一个新的 AnswerSynthesizer 实例。
func NewAnswerSynthesizer(llmClient llm.Client, temperature float64) *AnswerSynthesizer {
	return &AnswerSynthesizer{llmClient: llmClient, temperature: temperature}
}

// Synthesize 以给定的 system 消息与用户提问生成 n 条候选答案。
// 生成失败时不返回任何部分结果。
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, system llm.Message, question string, n int, evidence []model.Evidence) ([]model.AnswerRecord, error) {
	if n < 1 {
		n = 1
	}
	messages := []llm.Message{
		system,
		{Role: "user", Content: question},
	}
	completions, err := s.llmClient.Complete(ctx, messages, s.temperature, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	// 候选数量是对外契约：少于 n 个候选视为生成失败，不返回部分结果
	if len(completions) != n {
		return nil, fmt.Errorf("%w: expected %d completions, got %d", ErrGeneration, n, len(completions))
	}

	// 引用列表只构建一次，各候选共享同一底层切片
	references := make([]model.DocReference, 0, len(evidence))
	for _, e := range evidence {
		references = append(references, e.Reference())
	}

	records := make([]model.AnswerRecord, 0, len(completions))
	for _, completion := range completions {
		records = append(records, model.AnswerRecord{
			Text:           strings.ReplaceAll(completion.Content, "\n", ""),
			Sender:         model.SenderAssistant,
			ReferenceLinks: references,
		})
	}
	return records, nil
}
