package service

import (
	"context"
	"fmt"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/internal/repository"
	"rfx-assist-go/pkg/embedding"
	"rfx-assist-go/pkg/es"
	"rfx-assist-go/pkg/events"
	"rfx-assist-go/pkg/kafka"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/retry"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FallbackDisabledAnswer 是检索无果且调用方关闭回退时返回的固定答复。
// 文案是对外契约的一部分，前端按字面匹配，不得改动。
const FallbackDisabledAnswer = "No matching information found. Enable 'Fallback' to generate response."

// NewQueryRequest 是单问题查询的入参。UserID 来自认证中间件的 claims，
// 记录在新建的会话与完成事件上。
type NewQueryRequest struct {
	ConversationID string
	UserID         string
	Question       string
	Kind           model.RFxType
	Options        model.Options
	Fallback       bool
	Variants       int
}

// RefineRequest 是追问轮次的入参。追问基于会话中最近一次的用户提问检索。
type RefineRequest struct {
	ConversationID string
	UserID         string
	Instruction    string
	Kind           model.RFxType
	Options        model.Options
	Variants       int
}

// MultiQuestionRequest 是多问题流程的入参：逐题作答并合并引用的幻灯片。
type MultiQuestionRequest struct {
	UserID    string
	Questions []string
	Kind      model.RFxType
	Options   model.Options
	Fallback  bool
}

// QueryService 定义了问答编排层的接口。
type QueryService interface {
	NewQuery(ctx context.Context, req NewQueryRequest) (*model.QueryResult, error)
	Refine(ctx context.Context, req RefineRequest) (*model.QueryResult, error)
	MultiQuestion(ctx context.Context, req MultiQuestionRequest) (*model.SlideDeckResult, error)
}

// queryService 是 QueryService 接口的实现，串起检索、过滤、生成与持久化。
type queryService struct {
	conversationRepo repository.ConversationRepository
	historyCache     repository.HistoryCache
	embedder         embedding.Client
	searcher         es.Client
	filter           RelevanceFilter
	composer         PromptComposer
	synthesizer      *AnswerSynthesizer
	producer         kafka.Producer
	deckCoordinator  *DeckCoordinator
	retryPolicy      retry.Policy
	searchLimit      int
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	conversationRepo repository.ConversationRepository,
	historyCache repository.HistoryCache,
	embedder embedding.Client,
	searcher es.Client,
	filter RelevanceFilter,
	composer PromptComposer,
	synthesizer *AnswerSynthesizer,
	producer kafka.Producer,
	deckCoordinator *DeckCoordinator,
	searchLimit int,
) QueryService {
	return &queryService{
		conversationRepo: conversationRepo,
		historyCache:     historyCache,
		embedder:         embedder,
		searcher:         searcher,
		filter:           filter,
		composer:         composer,
		synthesizer:      synthesizer,
		producer:         producer,
		deckCoordinator:  deckCoordinator,
		retryPolicy:      retry.Default(),
		searchLimit:      searchLimit,
	}
}

// retrieve 向量化问题并检索候选文档，两步各自按策略重试。
func (s *queryService) retrieve(ctx context.Context, text string) ([]model.ScoredDocument, error) {
	var vector []float32
	err := s.retryPolicy.Do(ctx, func() error {
		var embedErr error
		vector, embedErr = s.embedder.CreateEmbedding(ctx, text)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrRetrieval, err)
	}

	var documents []model.ScoredDocument
	err = s.retryPolicy.Do(ctx, func() error {
		var searchErr error
		documents, searchErr = s.searcher.Search(ctx, vector, s.searchLimit)
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrRetrieval, err)
	}
	return documents, nil
}

// persistAnswers 并发落库全部候选答案。任何一条失败则整体报错，
// 失败的消息不会出现在返回结果中。
func (s *queryService) persistAnswers(ctx context.Context, conversationID string, records []model.AnswerRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, record := range records {
		record := record
		g.Go(func() error {
			_, err := s.conversationRepo.AppendMessage(gctx, conversationID,
				record.Text, record.Sender, model.MessageTypeSystem,
				record.FileLinks, record.ReferenceLinks)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// NewQuery 处理一次单问题查询：先落库用户消息，再检索、过滤、生成并落库答案。
func (s *queryService) NewQuery(ctx context.Context, req NewQueryRequest) (*model.QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is blank", ErrValidation)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown rfx type %q", ErrValidation, req.Kind)
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	log.Infow("查询开始", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID)

	exists, err := s.conversationRepo.ConversationExists(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !exists {
		if err := s.conversationRepo.CreateConversation(ctx, req.ConversationID, question, req.UserID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	// 用户消息先于一切检索动作落库，失败的流程也要留下提问记录
	if _, err := s.conversationRepo.AppendMessage(ctx, req.ConversationID,
		question, model.SenderUser, model.MessageTypeUser, nil, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.historyCache.SetLastQuestion(ctx, req.ConversationID, question)

	documents, err := s.retrieve(ctx, question)
	if err != nil {
		log.Errorw("查询失败", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}
	evidence := s.filter.Filter(documents)
	log.Infow("检索完成", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID,
		"documents", len(documents), "evidence", len(evidence))

	// 无证据且关闭回退：不调用大模型，直接落库固定答复
	if len(evidence) == 0 && !req.Fallback {
		record := model.AnswerRecord{Text: FallbackDisabledAnswer, Sender: model.SenderAssistant}
		if err := s.persistAnswers(ctx, req.ConversationID, []model.AnswerRecord{record}); err != nil {
			return nil, err
		}
		s.publish(req.ConversationID, req.UserID, events.FlowNewQuery, 1, false)
		return &model.QueryResult{
			ConversationID: req.ConversationID,
			Question:       question,
			Timestamp:      time.Now(),
			Results:        []model.AnswerRecord{record},
		}, nil
	}

	system := s.composer.Compose(EvidenceTexts(evidence), req.Kind, req.Options, true)
	records, err := s.synthesizer.Synthesize(ctx, system, question, req.Variants, evidence)
	if err != nil {
		log.Errorw("查询失败", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}
	log.Infow("生成完成", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID, "variants", len(records))

	if err := s.persistAnswers(ctx, req.ConversationID, records); err != nil {
		log.Errorw("查询失败", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}
	log.Infow("落库完成", "flow", events.FlowNewQuery, "conversation_id", req.ConversationID)

	s.publish(req.ConversationID, req.UserID, events.FlowNewQuery, len(records), len(evidence) > 0)
	return &model.QueryResult{
		ConversationID: req.ConversationID,
		Question:       question,
		Timestamp:      time.Now(),
		Results:        records,
	}, nil
}

// priorQuestion 返回会话中最近一次的用户提问。优先走缓存，
// 未命中时回退到消息表，从新到旧找第一条用户消息。
func (s *queryService) priorQuestion(ctx context.Context, conversationID string) (string, error) {
	if question, ok := s.historyCache.GetLastQuestion(ctx, conversationID); ok {
		return question, nil
	}
	messages, err := s.conversationRepo.FetchMessages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == model.SenderUser {
			return messages[i].Text, nil
		}
	}
	return "", nil
}

// Refine 处理一次追问：以“追问 + 上一问”的拼接文本检索，
// 让证据同时覆盖修改意图与原始话题。追问不走回退分支。
func (s *queryService) Refine(ctx context.Context, req RefineRequest) (*model.QueryResult, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("%w: instruction is blank", ErrValidation)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown rfx type %q", ErrValidation, req.Kind)
	}
	exists, err := s.conversationRepo.ConversationExists(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: unknown conversation %q", ErrValidation, req.ConversationID)
	}
	log.Infow("追问开始", "flow", events.FlowRefine, "conversation_id", req.ConversationID)

	// 上一问必须在本次指令落库之前取出，否则会取到指令本身
	prior, err := s.priorQuestion(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.conversationRepo.AppendMessage(ctx, req.ConversationID,
		instruction, model.SenderUser, model.MessageTypeUser, nil, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.historyCache.SetLastQuestion(ctx, req.ConversationID, instruction)

	documents, err := s.retrieve(ctx, instruction+prior)
	if err != nil {
		log.Errorw("追问失败", "flow", events.FlowRefine, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}
	evidence := s.filter.Filter(documents)
	log.Infow("检索完成", "flow", events.FlowRefine, "conversation_id", req.ConversationID,
		"documents", len(documents), "evidence", len(evidence))

	system := s.composer.ComposeRefine(EvidenceTexts(evidence), req.Kind, req.Options)
	records, err := s.synthesizer.Synthesize(ctx, system, instruction, req.Variants, evidence)
	if err != nil {
		log.Errorw("追问失败", "flow", events.FlowRefine, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}

	if err := s.persistAnswers(ctx, req.ConversationID, records); err != nil {
		log.Errorw("追问失败", "flow", events.FlowRefine, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}
	log.Infow("落库完成", "flow", events.FlowRefine, "conversation_id", req.ConversationID)

	s.publish(req.ConversationID, req.UserID, events.FlowRefine, len(records), len(evidence) > 0)
	return &model.QueryResult{
		ConversationID: req.ConversationID,
		Question:       instruction,
		Timestamp:      time.Now(),
		Results:        records,
	}, nil
}

// MultiQuestion 在一个新会话内逐题作答，并把各题证据引用的幻灯片
// 合并为一份演示文稿。单题失败终止整个流程；幻灯片合并失败只降级。
func (s *queryService) MultiQuestion(ctx context.Context, req MultiQuestionRequest) (*model.SlideDeckResult, error) {
	if len(req.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrValidation)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("%w: question %d is blank", ErrValidation, i+1)
		}
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown rfx type %q", ErrValidation, req.Kind)
	}

	conversationID := uuid.NewString()
	title := fmt.Sprintf("Multiple Questions %s", conversationID)
	if err := s.conversationRepo.CreateConversation(ctx, conversationID, title, req.UserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	log.Infow("多问题流程开始", "flow", events.FlowMultiQuestion,
		"conversation_id", conversationID, "questions", len(req.Questions))

	answers := make([]model.QueryResult, 0, len(req.Questions))
	evidenceGroups := make([][]model.Evidence, 0, len(req.Questions))
	for _, question := range req.Questions {
		question := strings.TrimSpace(question)

		if _, err := s.conversationRepo.AppendMessage(ctx, conversationID,
			question, model.SenderUser, model.MessageTypeUser, nil, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}

		documents, err := s.retrieve(ctx, question)
		if err != nil {
			log.Errorw("多问题流程失败", "flow", events.FlowMultiQuestion,
				"conversation_id", conversationID, "error", err)
			return nil, err
		}
		evidence := s.filter.Filter(documents)

		var records []model.AnswerRecord
		if len(evidence) == 0 && !req.Fallback {
			records = []model.AnswerRecord{{Text: FallbackDisabledAnswer, Sender: model.SenderAssistant}}
		} else {
			system := s.composer.Compose(EvidenceTexts(evidence), req.Kind, req.Options, true)
			records, err = s.synthesizer.Synthesize(ctx, system, question, 1, evidence)
			if err != nil {
				log.Errorw("多问题流程失败", "flow", events.FlowMultiQuestion,
					"conversation_id", conversationID, "error", err)
				return nil, err
			}
		}
		if err := s.persistAnswers(ctx, conversationID, records); err != nil {
			return nil, err
		}

		evidenceGroups = append(evidenceGroups, evidence)
		answers = append(answers, model.QueryResult{
			ConversationID: conversationID,
			Question:       question,
			Timestamp:      time.Now(),
			Results:        records,
		})
	}

	deckURL := s.deckCoordinator.Assemble(ctx, CollectSlides(evidenceGroups))
	log.Infow("多问题流程完成", "flow", events.FlowMultiQuestion,
		"conversation_id", conversationID, "deck", deckURL != "")

	s.publish(conversationID, req.UserID, events.FlowMultiQuestion, len(answers), deckURL != "")
	return &model.SlideDeckResult{SlideDeck: deckURL, Answers: answers}, nil
}

// publish 发布尽力而为的问答完成事件。
func (s *queryService) publish(conversationID, userID, flow string, answerCount int, grounded bool) {
	s.producer.PublishQueryCompleted(events.QueryCompleted{
		ConversationID: conversationID,
		UserID:         userID,
		Flow:           flow,
		AnswerCount:    answerCount,
		Grounded:       grounded,
		Timestamp:      time.Now(),
	})
}
