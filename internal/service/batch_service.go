package service

import (
	"context"
	"fmt"
	"path"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/internal/repository"
	"rfx-assist-go/pkg/embedding"
	"rfx-assist-go/pkg/es"
	"rfx-assist-go/pkg/events"
	"rfx-assist-go/pkg/kafka"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/retry"
	"rfx-assist-go/pkg/tabular"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchRequest 是批量问答的入参：问题文件解析出的问题列表、
// 会话、任务类型与输出格式。
type BatchRequest struct {
	ConversationID string
	UserID         string
	FileName       string
	Questions      []string
	Kind           model.RFxType
	Options        model.Options
	Format         string
}

// BatchService 处理文件驱动的批量问答：全部问题一次向量化与检索，
// 逐题生成单条答案，产出结果表格并上传，最后落库一条文件消息。
type BatchService interface {
	ProcessFile(ctx context.Context, req BatchRequest) (*model.QueryResult, error)
}

type batchService struct {
	conversationRepo repository.ConversationRepository
	embedder         embedding.Client
	searcher         es.Client
	filter           RelevanceFilter
	composer         PromptComposer
	synthesizer      *AnswerSynthesizer
	store            ArtifactStore
	producer         kafka.Producer
	retryPolicy      retry.Policy
	searchLimit      int
}

// ArtifactStore 是对象存储的最小上传接口，由 pkg/storage 提供实现。
type ArtifactStore interface {
	Upload(ctx context.Context, data []byte, objectName string) (string, error)
}

// NewBatchService 创建一个新的 BatchService 实例。
func NewBatchService(
	conversationRepo repository.ConversationRepository,
	embedder embedding.Client,
	searcher es.Client,
	filter RelevanceFilter,
	composer PromptComposer,
	synthesizer *AnswerSynthesizer,
	store ArtifactStore,
	producer kafka.Producer,
	searchLimit int,
) BatchService {
	return &batchService{
		conversationRepo: conversationRepo,
		embedder:         embedder,
		searcher:         searcher,
		filter:           filter,
		composer:         composer,
		synthesizer:      synthesizer,
		store:            store,
		producer:         producer,
		retryPolicy:      retry.Default(),
		searchLimit:      searchLimit,
	}
}

// embedAll 并发向量化全部问题。任何一个失败则整体失败，
// 不会用残缺的向量组发起检索。
func (s *batchService) embedAll(ctx context.Context, questions []string) ([][]float32, error) {
	vectors := make([][]float32, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	for i, question := range questions {
		i, question := i, question
		g.Go(func() error {
			return s.retryPolicy.Do(gctx, func() error {
				vector, err := s.embedder.CreateEmbedding(gctx, question)
				if err != nil {
					return err
				}
				vectors[i] = vector
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrRetrieval, err)
	}
	return vectors, nil
}

// artifactName 生成结果文件的对象名：原文件名去扩展名，
// 加 response 与时间戳后缀。
func artifactName(fileName, format string) string {
	stem := strings.TrimSuffix(fileName, path.Ext(fileName))
	timestamp := time.Now().Format("02_01_2006-15_04_05")
	return fmt.Sprintf("%s-response-%s.%s", stem, timestamp, format)
}

// ProcessFile 执行一次批量问答。
func (s *batchService) ProcessFile(ctx context.Context, req BatchRequest) (*model.QueryResult, error) {
	if len(req.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions in file", ErrValidation)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("%w: question %d is blank", ErrValidation, i+1)
		}
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown rfx type %q", ErrValidation, req.Kind)
	}
	if req.Format != tabular.FormatCSV && req.Format != tabular.FormatXLSX {
		return nil, fmt.Errorf("%w: unknown output format %q", ErrValidation, req.Format)
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	log.Infow("批量问答开始", "flow", events.FlowBatch,
		"conversation_id", req.ConversationID, "questions", len(req.Questions), "file", req.FileName)

	exists, err := s.conversationRepo.ConversationExists(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !exists {
		if err := s.conversationRepo.CreateConversation(ctx, req.ConversationID, req.FileName, req.UserID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	vectors, err := s.embedAll(ctx, req.Questions)
	if err != nil {
		log.Errorw("批量问答失败", "flow", events.FlowBatch, "conversation_id", req.ConversationID, "error", err)
		return nil, err
	}

	var documentGroups [][]model.ScoredDocument
	err = s.retryPolicy.Do(ctx, func() error {
		var searchErr error
		documentGroups, searchErr = s.searcher.SearchBatch(ctx, vectors, s.searchLimit)
		return searchErr
	})
	if err != nil {
		log.Errorw("批量问答失败", "flow", events.FlowBatch, "conversation_id", req.ConversationID, "error", err)
		return nil, fmt.Errorf("%w: search: %v", ErrRetrieval, err)
	}
	log.Infow("检索完成", "flow", events.FlowBatch, "conversation_id", req.ConversationID)

	// 批处理每题只生成一条答案；无证据时直接回退到通用知识作答，
	// 且不要求模型抑制引用措辞（结果表本身不会带引用列之外的出处）
	rows := make([]tabular.Row, 0, len(req.Questions))
	anyGrounded := false
	for i, question := range req.Questions {
		evidence := s.filter.Filter(documentGroups[i])
		if len(evidence) > 0 {
			anyGrounded = true
		}
		system := s.composer.Compose(EvidenceTexts(evidence), req.Kind, req.Options, false)
		records, err := s.synthesizer.Synthesize(ctx, system, question, 1, evidence)
		if err != nil {
			log.Errorw("批量问答失败", "flow", events.FlowBatch,
				"conversation_id", req.ConversationID, "question", i+1, "error", err)
			return nil, err
		}

		references := make([]string, 0, len(evidence))
		images := make([]string, 0, len(evidence))
		for _, e := range evidence {
			references = append(references, e.Payload.Source)
			images = append(images, e.Payload.Images...)
		}
		rows = append(rows, tabular.Row{
			Question:   question,
			Answer:     records[0].Text,
			References: references,
			Images:     images,
		})
	}
	log.Infow("生成完成", "flow", events.FlowBatch, "conversation_id", req.ConversationID, "rows", len(rows))

	artifact, err := tabular.Build(rows, req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	objectName := artifactName(req.FileName, req.Format)
	fileURL, err := s.store.Upload(ctx, artifact, objectName)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %v", ErrPersistence, err)
	}

	// 批量流程只在会话里留一条汇总消息，指向结果文件
	summary := model.AnswerRecord{
		Text:      fmt.Sprintf("File %s created.", objectName),
		Sender:    model.SenderAssistant,
		FileLinks: []string{fileURL},
	}
	if _, err := s.conversationRepo.AppendMessage(ctx, req.ConversationID,
		summary.Text, summary.Sender, model.MessageTypeSystem, summary.FileLinks, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	log.Infow("落库完成", "flow", events.FlowBatch, "conversation_id", req.ConversationID, "file", fileURL)

	s.producer.PublishQueryCompleted(events.QueryCompleted{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Flow:           events.FlowBatch,
		AnswerCount:    len(rows),
		Grounded:       anyGrounded,
		Timestamp:      time.Now(),
	})
	return &model.QueryResult{
		ConversationID: req.ConversationID,
		Timestamp:      time.Now(),
		Results:        []model.AnswerRecord{summary},
	}, nil
}
