package service

import (
	"context"
	"encoding/csv"
	"strings"
	"sync"
	"testing"

	"rfx-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore 是 ArtifactStore 的内存实现。
type stubStore struct {
	mu         sync.Mutex
	objectName string
	data       []byte
	err        error
}

func (s *stubStore) Upload(_ context.Context, data []byte, objectName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.objectName = objectName
	s.data = data
	return "http://minio/rfx-artifacts/" + objectName, nil
}

type batchFixture struct {
	repo     *stubRepo
	embedder *stubEmbedder
	searcher *stubSearcher
	llm      *stubLLM
	store    *stubStore
	producer *stubProducer
	svc      BatchService
}

func newBatchFixture() *batchFixture {
	f := &batchFixture{
		repo:     newStubRepo(),
		embedder: &stubEmbedder{},
		searcher: &stubSearcher{},
		llm:      &stubLLM{answer: "batch answer"},
		store:    &stubStore{},
		producer: &stubProducer{},
	}
	f.svc = NewBatchService(
		f.repo,
		f.embedder, f.searcher,
		RelevanceFilter{Percentile: 25, Cutoff: 0.75},
		newComposer(),
		NewAnswerSynthesizer(f.llm, 0.2),
		f.store, f.producer,
		3,
	)
	return f
}

func TestProcessFileValidation(t *testing.T) {
	f := newBatchFixture()

	_, err := f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv", Questions: nil,
		Kind: model.RFxProposal, Format: "csv",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv", Questions: []string{"ok", " "},
		Kind: model.RFxProposal, Format: "csv",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv", Questions: []string{"ok"},
		Kind: model.RFxProposal, Format: "pdf",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProcessFileBuildsAndUploadsArtifact(t *testing.T) {
	f := newBatchFixture()
	f.searcher.docs = groundedDocs()

	result, err := f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1",
		FileName:       "questions.csv",
		Questions:      []string{"q one", "q two"},
		Kind:           model.RFxProposal,
		Format:         "csv",
	})
	require.NoError(t, err)

	// 对象名：原文件名去扩展名 + response + 时间戳
	assert.True(t, strings.HasPrefix(f.store.objectName, "questions-response-"))
	assert.True(t, strings.HasSuffix(f.store.objectName, ".csv"))

	// 结果表：表头 + 每个问题一行
	records, err := csv.NewReader(strings.NewReader(string(f.store.data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Question", "Answer", "References", "Images"}, records[0])
	assert.Equal(t, "q one", records[1][0])
	assert.Equal(t, "batch answer", records[1][1])
	assert.NotEmpty(t, records[1][2])

	// 会话里只留一条指向结果文件的汇总消息
	require.Len(t, result.Results, 1)
	assert.Equal(t, "File "+f.store.objectName+" created.", result.Results[0].Text)
	require.Len(t, result.Results[0].FileLinks, 1)
	assert.Equal(t, "http://minio/rfx-artifacts/"+f.store.objectName, result.Results[0].FileLinks[0])

	messages := f.repo.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, result.Results[0].Text, messages[0].Text)
	assert.Equal(t, []string{result.Results[0].FileLinks[0]}, messages[0].FileLinks)

	// 有证据的批次，完成事件标记为有依据
	require.Len(t, f.producer.events, 1)
	assert.True(t, f.producer.events[0].Grounded)
}

func TestProcessFileEmbedsAllQuestions(t *testing.T) {
	f := newBatchFixture()
	f.searcher.docs = groundedDocs()

	_, err := f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv",
		Questions: []string{"alpha", "beta", "gamma"},
		Kind:      model.RFxProposal, Format: "csv",
	})
	require.NoError(t, err)

	// 并发向量化，顺序不保证
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, f.embedder.texts)
}

func TestProcessFileEmbeddingAllOrNothing(t *testing.T) {
	f := newBatchFixture()
	f.searcher.docs = groundedDocs()
	f.embedder.fn = func(text string) ([]float32, error) {
		if text == "beta" {
			return nil, assert.AnError
		}
		return []float32{0.1}, nil
	}

	_, err := f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv",
		Questions: []string{"alpha", "beta"},
		Kind:      model.RFxProposal, Format: "csv",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)

	// 失败时不生成、不上传、不落库
	assert.Empty(t, f.llm.requests)
	assert.Empty(t, f.store.objectName)
	assert.Empty(t, f.repo.snapshot())
}

func TestProcessFileUngroundedUsesFallbackWithoutSuppression(t *testing.T) {
	f := newBatchFixture()
	f.searcher.docs = nil

	_, err := f.svc.ProcessFile(context.Background(), BatchRequest{
		ConversationID: "c1", FileName: "q.csv",
		Questions: []string{"q"},
		Kind:      model.RFxProposal, Format: "csv",
	})
	require.NoError(t, err)

	require.Len(t, f.llm.requests, 1)
	assert.Contains(t, f.llm.requests[0][0].Content, "No reference material")
	assert.NotContains(t, f.llm.requests[0][0].Content, "Do not fabricate citations")

	// 所有问题都无证据时，完成事件标记为无依据
	require.Len(t, f.producer.events, 1)
	assert.False(t, f.producer.events[0].Grounded)
}
