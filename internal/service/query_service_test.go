package service

import (
	"context"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/events"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryFixture struct {
	repo     *stubRepo
	cache    *stubCache
	embedder *stubEmbedder
	searcher *stubSearcher
	llm      *stubLLM
	producer *stubProducer
	deck     *stubDeck
	svc      QueryService
}

func newQueryFixture() *queryFixture {
	f := &queryFixture{
		repo:     newStubRepo(),
		cache:    newStubCache(),
		embedder: &stubEmbedder{},
		searcher: &stubSearcher{},
		llm:      &stubLLM{answer: "generated answer"},
		producer: &stubProducer{},
		deck:     &stubDeck{url: "http://deck/merged.pptx"},
	}
	f.svc = NewQueryService(
		f.repo, f.cache,
		f.embedder, f.searcher,
		RelevanceFilter{Percentile: 25, Cutoff: 0.75},
		newComposer(),
		NewAnswerSynthesizer(f.llm, 0.2),
		f.producer,
		NewDeckCoordinator(f.deck),
		5,
	)
	return f
}

// groundedDocs 返回能通过 25 分位 / 0.75 截断的检索结果：
// 4 条文档的 25 分位阈值是最低分 0.80，前三条严格大于阈值被保留。
func groundedDocs() []model.ScoredDocument {
	return []model.ScoredDocument{
		doc("a", 0.95, "s1"),
		doc("b", 0.92, "s2"),
		doc("c", 0.90, "s3"),
		doc("d", 0.80, "s4"),
	}
}

func TestNewQueryValidation(t *testing.T) {
	f := newQueryFixture()

	_, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "   ", Kind: model.RFxProposal,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "q", Kind: model.RFxType("bogus"),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.NewQuery(context.Background(), NewQueryRequest{
		Question: "q", Kind: model.RFxProposal,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewQueryFallbackDisabledShortCircuits(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = nil // 检索无结果

	result, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "unknown topic", Kind: model.RFxProposal, Fallback: false,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, FallbackDisabledAnswer, result.Results[0].Text)

	// 不会调用大模型
	assert.Empty(t, f.llm.requests)

	// 固定答复也要落库
	messages := f.repo.snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, model.SenderUser, messages[0].Sender)
	assert.Equal(t, FallbackDisabledAnswer, messages[1].Text)
	assert.Equal(t, model.MessageTypeSystem, messages[1].MsgType)
}

func TestNewQueryFallbackEnabledGenerates(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = nil

	result, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "unknown topic", Kind: model.RFxProposal, Fallback: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "generated answer", result.Results[0].Text)
	assert.Empty(t, result.Results[0].ReferenceLinks)
	require.Len(t, f.llm.requests, 1)
	assert.Contains(t, f.llm.requests[0][0].Content, "No reference material")
}

func TestNewQueryGroundedPersistsAllVariants(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()

	result, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "what is the uptime SLA?", Kind: model.RFxProposal, Variants: 3,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 3)

	messages := f.repo.snapshot()
	require.Len(t, messages, 4) // 1 条用户消息 + 3 条答案

	// 用户消息先于一切落库
	assert.Equal(t, model.SenderUser, messages[0].Sender)
	assert.Equal(t, "what is the uptime SLA?", messages[0].Text)
	for _, m := range messages[1:] {
		assert.Equal(t, model.SenderAssistant, m.Sender)
		assert.NotEmpty(t, m.References)
	}
}

func TestNewQueryCreatesMissingConversation(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()

	_, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "fresh", Question: "q", Kind: model.RFxProposal, Variants: 1,
	})
	require.NoError(t, err)

	exists, err := f.repo.ConversationExists(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewQueryUpdatesLastQuestionCache(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()

	_, err := f.svc.NewQuery(context.Background(), NewQueryRequest{
		ConversationID: "c1", Question: "the question", Kind: model.RFxProposal, Variants: 1,
	})
	require.NoError(t, err)

	cached, ok := f.cache.GetLastQuestion(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "the question", cached)
}

func TestRefineEmbedsInstructionPlusPrior(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()
	require.NoError(t, f.repo.CreateConversation(context.Background(), "c1", "t", "u1"))
	f.cache.SetLastQuestion(context.Background(), "c1", "original question")

	_, err := f.svc.Refine(context.Background(), RefineRequest{
		ConversationID: "c1", Instruction: "make it shorter", Kind: model.RFxProposal, Variants: 1,
	})
	require.NoError(t, err)

	// 检索文本是“追问 + 上一问”的直接拼接
	require.Len(t, f.embedder.texts, 1)
	assert.Equal(t, "make it shorteroriginal question", f.embedder.texts[0])

	// 缓存滚动为本次追问
	cached, _ := f.cache.GetLastQuestion(context.Background(), "c1")
	assert.Equal(t, "make it shorter", cached)
}

func TestRefinePriorFromStoreOnCacheMiss(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()
	require.NoError(t, f.repo.CreateConversation(context.Background(), "c1", "t", "u1"))
	_, err := f.repo.AppendMessage(context.Background(), "c1", "stored question", model.SenderUser, model.MessageTypeUser, nil, nil)
	require.NoError(t, err)
	_, err = f.repo.AppendMessage(context.Background(), "c1", "an answer", model.SenderAssistant, model.MessageTypeSystem, nil, nil)
	require.NoError(t, err)

	_, err = f.svc.Refine(context.Background(), RefineRequest{
		ConversationID: "c1", Instruction: "expand", Kind: model.RFxProposal, Variants: 1,
	})
	require.NoError(t, err)

	require.Len(t, f.embedder.texts, 1)
	assert.Equal(t, "expandstored question", f.embedder.texts[0])
}

func TestRefineUnknownConversation(t *testing.T) {
	f := newQueryFixture()

	_, err := f.svc.Refine(context.Background(), RefineRequest{
		ConversationID: "missing", Instruction: "expand", Kind: model.RFxProposal,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRefineUsesRefinePrompt(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = nil // 追问不走回退分支
	require.NoError(t, f.repo.CreateConversation(context.Background(), "c1", "t", "u1"))

	_, err := f.svc.Refine(context.Background(), RefineRequest{
		ConversationID: "c1", Instruction: "expand", Kind: model.RFxProposal, Variants: 1,
	})
	require.NoError(t, err)

	require.Len(t, f.llm.requests, 1)
	assert.Contains(t, f.llm.requests[0][0].Content, "refining a previous answer")
}

func TestMultiQuestionMergesSlides(t *testing.T) {
	f := newQueryFixture()
	docs := groundedDocs()
	docs[0].Payload.Slide = "http://slides/one.pptx"
	docs[1].Payload.Slide = "http://slides/two.pptx"
	docs[2].Payload.Slide = "http://slides/one.pptx" // 重复引用只提交一次
	f.searcher.docs = docs

	result, err := f.svc.MultiQuestion(context.Background(), MultiQuestionRequest{
		Questions: []string{"q one", "q two"}, Kind: model.RFxProposal,
	})
	require.NoError(t, err)
	require.Len(t, result.Answers, 2)
	assert.Equal(t, "http://deck/merged.pptx", result.SlideDeck)
	assert.Equal(t, []string{"http://slides/one.pptx", "http://slides/two.pptx"}, f.deck.slides)

	// 会话标题带流程标记
	conversationID := result.Answers[0].ConversationID
	title := f.repo.conversations[conversationID]
	assert.True(t, strings.HasPrefix(title, "Multiple Questions "))
}

func TestMultiQuestionDeckFailureDegrades(t *testing.T) {
	f := newQueryFixture()
	docs := groundedDocs()
	docs[0].Payload.Slide = "http://slides/one.pptx"
	f.searcher.docs = docs
	f.deck.err = assert.AnError

	result, err := f.svc.MultiQuestion(context.Background(), MultiQuestionRequest{
		Questions: []string{"q"}, Kind: model.RFxProposal,
	})
	require.NoError(t, err)
	assert.Equal(t, "", result.SlideDeck)
	require.Len(t, result.Answers, 1)
	assert.Equal(t, "generated answer", result.Answers[0].Results[0].Text)
}

func TestMultiQuestionRecordsCallerIdentity(t *testing.T) {
	f := newQueryFixture()
	f.searcher.docs = groundedDocs()

	result, err := f.svc.MultiQuestion(context.Background(), MultiQuestionRequest{
		UserID: "user-42", Questions: []string{"q"}, Kind: model.RFxProposal,
	})
	require.NoError(t, err)

	// 新建会话归属调用方
	conversationID := result.Answers[0].ConversationID
	assert.Equal(t, "user-42", f.repo.owners[conversationID])

	// 完成事件携带调用方身份
	require.Len(t, f.producer.events, 1)
	assert.Equal(t, "user-42", f.producer.events[0].UserID)
	assert.Equal(t, events.FlowMultiQuestion, f.producer.events[0].Flow)
}

func TestMultiQuestionValidation(t *testing.T) {
	f := newQueryFixture()

	_, err := f.svc.MultiQuestion(context.Background(), MultiQuestionRequest{
		Questions: nil, Kind: model.RFxProposal,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.MultiQuestion(context.Background(), MultiQuestionRequest{
		Questions: []string{"ok", "  "}, Kind: model.RFxProposal,
	})
	assert.ErrorIs(t, err, ErrValidation)
}
