package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/llm"
	"zhiwen-go/pkg/log"
)

const (
	defaultRetrieveLimit       = 5
	defaultQueryThreshold      = 0.3
	defaultHistoryPageSize     = 20
	systemPromptWithContext    = "你是一个基于知识库回答问题的智能助手。"
	systemPromptWithoutContext = "你是一个乐于助人的智能助手。"
)

// 问答事件流的事件类型。
const (
	QueryEventToken     = "token"
	QueryEventCitations = "citations"
	QueryEventDone      = "done"
	QueryEventError     = "error"
)

// QueryEvent 是问答事件流里的单个事件。
// token 事件携带 Content；citations 事件携带 Sources 与 Confidence；
// done 事件携带 Confidence 与（持久化时的）QueryID；error 事件携带 Message。
type QueryEvent struct {
	Type       string           `json:"type"`
	Content    string           `json:"content,omitempty"`
	Sources    []model.Citation `json:"sources,omitempty"`
	Confidence *float64         `json:"confidenceScore,omitempty"`
	QueryID    string           `json:"queryId,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// QueryRequest 描述一次问答调用。
// Scope 必须已经由调用方收敛到用户可访问的范围。
type QueryRequest struct {
	UserID   uint
	Question string
	Scope    model.VectorFilter
	Persist  bool
}

// retrievedContext 是检索阶段的产物，后续阶段只读。
// contexts 与 results 一一对应，是提供给模型的分块文本。
type retrievedContext struct {
	results  []model.SearchResult
	contexts []string
}

// generatedAnswer 是生成阶段的产物。
type generatedAnswer struct {
	retrievedContext
	answer string
}

// citedAnswer 是引用阶段的产物，携带最终回答的全部衍生信息。
type citedAnswer struct {
	generatedAnswer
	citations  []model.Citation
	confidence float64
	validation model.ValidationReport
}

// QueryService 接口定义了检索增强问答的编排操作。
type QueryService interface {
	// AnswerStream 流式回答：事件依次为若干 token、可选的 citations、
	// 最终的 done；生成失败时只发出一个 error 事件。通道在流结束后关闭，
	// 调用方断开（ctx 取消）后不再发出任何事件。
	AnswerStream(ctx context.Context, req QueryRequest) (<-chan QueryEvent, error)
	// Answer 同步回答，返回组装好的问答记录。
	Answer(ctx context.Context, req QueryRequest) (*model.Query, error)
	// History 分页返回用户的问答历史。
	History(userID uint, page, pageSize int) ([]model.Query, int64, error)
	// GetByID 返回用户自己的某条问答记录，他人记录视为不存在。
	GetByID(userID uint, queryID string) (*model.Query, error)
}

type queryService struct {
	searchService   SearchService
	citationService CitationService
	llmClient       llm.Client
	queryRepo       repository.QueryRepository
	retrieveLimit   int
	threshold       float64
	modelName       string
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	queryCfg config.QueryConfig,
	llmCfg config.LLMConfig,
	searchService SearchService,
	citationService CitationService,
	llmClient llm.Client,
	queryRepo repository.QueryRepository,
) QueryService {
	limit := queryCfg.RetrieveLimit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}
	threshold := queryCfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultQueryThreshold
	}
	return &queryService{
		searchService:   searchService,
		citationService: citationService,
		llmClient:       llmClient,
		queryRepo:       queryRepo,
		retrieveLimit:   limit,
		threshold:       threshold,
		modelName:       llmCfg.Model,
	}
}

// AnswerStream 流式回答。
func (s *queryService) AnswerStream(ctx context.Context, req QueryRequest) (<-chan QueryEvent, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, NewValidationError("问题不能为空")
	}

	events := make(chan QueryEvent)
	go s.runStream(ctx, req, events)
	return events, nil
}

// runStream 执行 检索 → 生成 → 引用 三个阶段并把事件写入通道。
func (s *queryService) runStream(ctx context.Context, req QueryRequest, events chan<- QueryEvent) {
	defer close(events)
	started := time.Now()

	// emit 在调用方断开后返回 false，保证取消后不再发出任何事件。
	emit := func(ev QueryEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	rc := s.retrieve(ctx, req)
	if ctx.Err() != nil {
		return
	}

	var answer strings.Builder
	messages := buildQueryMessages(req.Question, rc.contexts)
	err := s.llmClient.Stream(ctx, messages, nil, func(delta string) error {
		if !emit(QueryEvent{Type: QueryEventToken, Content: delta}) {
			return context.Canceled
		}
		answer.WriteString(delta)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Infof("[QueryService] 调用方已断开，生成中止")
			return
		}
		log.Errorf("[QueryService] 流式生成回答失败: %v", err)
		emit(QueryEvent{Type: QueryEventError, Message: "生成回答失败，请稍后重试"})
		return
	}

	ca := s.cite(generatedAnswer{retrievedContext: rc, answer: answer.String()})

	if len(ca.citations) > 0 {
		if !emit(QueryEvent{Type: QueryEventCitations, Sources: ca.citations, Confidence: &ca.confidence}) {
			return
		}
	}

	queryID := ""
	if req.Persist {
		record := s.buildRecord(req, ca, started)
		if err := s.queryRepo.Create(record); err != nil {
			// 回答已经完整下发，落库失败只记日志，不打断事件流。
			log.Errorf("[QueryService] 保存问答记录失败: %v", err)
		} else {
			queryID = record.ID
		}
	}

	emit(QueryEvent{Type: QueryEventDone, Confidence: &ca.confidence, QueryID: queryID})
	log.Infof("[QueryService] 流式问答完成, 引用 %d 条, 置信度 %.4f, 耗时 %dms",
		len(ca.citations), ca.confidence, time.Since(started).Milliseconds())
}

// Answer 同步回答。
func (s *queryService) Answer(ctx context.Context, req QueryRequest) (*model.Query, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, NewValidationError("问题不能为空")
	}
	started := time.Now()

	rc := s.retrieve(ctx, req)
	messages := buildQueryMessages(req.Question, rc.contexts)

	answer, err := s.llmClient.Generate(ctx, messages, nil)
	if err != nil {
		log.Errorf("[QueryService] 生成回答失败: %v", err)
		if req.Persist {
			s.persistFailure(req, err, started)
		}
		return nil, fmt.Errorf("生成回答失败: %w", err)
	}

	ca := s.cite(generatedAnswer{retrievedContext: rc, answer: answer})
	record := s.buildRecord(req, ca, started)
	if req.Persist {
		if err := s.queryRepo.Create(record); err != nil {
			log.Errorf("[QueryService] 保存问答记录失败: %v", err)
		}
	}
	return record, nil
}

// History 分页返回用户的问答历史。
func (s *queryService) History(userID uint, page, pageSize int) ([]model.Query, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultHistoryPageSize
	}
	return s.queryRepo.FindWithPagination(userID, (page-1)*pageSize, pageSize)
}

// GetByID 返回用户自己的某条问答记录。
func (s *queryService) GetByID(userID uint, queryID string) (*model.Query, error) {
	record, err := s.queryRepo.FindByID(queryID)
	if err != nil {
		return nil, err
	}
	// 不向调用方泄露他人记录的存在。
	if record.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

// retrieve 执行检索阶段。检索失败降级为空上下文，问答继续。
func (s *queryService) retrieve(ctx context.Context, req QueryRequest) retrievedContext {
	results, err := s.searchService.Search(ctx, req.Question, req.Scope, s.retrieveLimit, s.threshold)
	if err != nil {
		log.Errorf("[QueryService] 检索上下文失败，降级为无上下文回答: %v", err)
		return retrievedContext{}
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Text
	}
	log.Infof("[QueryService] 检索到 %d 条上下文", len(results))
	return retrievedContext{results: results, contexts: contexts}
}

// cite 执行引用阶段：从回答里提取 [N] 标记，生成引用、置信度与质量结论。
func (s *queryService) cite(ga generatedAnswer) citedAnswer {
	var citations []model.Citation
	if len(ga.contexts) > 0 && ga.answer != "" {
		if cited := extractCitedOrdinals(ga.answer); len(cited) > 0 {
			citations = s.citationService.BuildCitations(ga.results, cited)
		}
	}

	confidence := s.citationService.OverallConfidence(ga.results, len(citations))
	validation := s.citationService.Validate(ga.answer, ga.contexts, citations)
	if !validation.IsValid && len(validation.Issues) > 0 {
		log.Warnf("[QueryService] 回答质量校验发现问题: %v", validation.Issues)
	}

	return citedAnswer{
		generatedAnswer: ga,
		citations:       citations,
		confidence:      confidence,
		validation:      validation,
	}
}

// buildRecord 组装一条完成状态的问答记录。
func (s *queryService) buildRecord(req QueryRequest, ca citedAnswer, started time.Time) *model.Query {
	now := time.Now()
	answerText := ca.answer
	record := &model.Query{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		QueryText:        req.Question,
		Result:           &answerText,
		Status:           model.QueryStatusCompleted,
		Sources:          ca.citations,
		ConfidenceScore:  ca.confidence,
		ModelUsed:        s.modelName,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		CompletedAt:      &now,
	}
	if req.Scope.CollectionID != "" {
		collectionID := req.Scope.CollectionID
		record.CollectionID = &collectionID
	}
	return record
}

// persistFailure 保存一条失败状态的问答记录，失败只记日志。
func (s *queryService) persistFailure(req QueryRequest, cause error, started time.Time) {
	message := cause.Error()
	record := &model.Query{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		QueryText:        req.Question,
		Status:           model.QueryStatusFailed,
		ErrorMessage:     &message,
		ModelUsed:        s.modelName,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}
	if req.Scope.CollectionID != "" {
		collectionID := req.Scope.CollectionID
		record.CollectionID = &collectionID
	}
	if err := s.queryRepo.Create(record); err != nil {
		log.Errorf("[QueryService] 保存失败状态的问答记录失败: %v", err)
	}
}

// buildQueryMessages 构建发送给模型的消息列表。
// 有上下文时按 [N] 编号拼接资料并要求模型标注出处，无上下文时直接问答。
func buildQueryMessages(question string, contexts []string) []llm.Message {
	if len(contexts) == 0 {
		return []llm.Message{
			{Role: "system", Content: systemPromptWithoutContext},
			{Role: "user", Content: fmt.Sprintf("请清晰简洁地回答下面的问题。\n\n问题：%s", question)},
		}
	}

	var numbered strings.Builder
	for i, text := range contexts {
		numbered.WriteString(fmt.Sprintf("[%d] %s\n\n", i+1, text))
	}

	prompt := fmt.Sprintf(`请根据下面提供的资料回答问题。

资料（带编号）：
%s问题：%s

要求：
- 回答必须基于上面的资料，准确清晰
- 陈述事实时用 [N] 形式标注资料来源，例如 [1]、[2]
- 如果资料不足以回答问题，请明确说明
- 只使用资料中的信息，不要自行补充`, numbered.String(), question)

	return []llm.Message{
		{Role: "system", Content: systemPromptWithContext},
		{Role: "user", Content: prompt},
	}
}

// extractCitedOrdinals 从回答正文提取被引用的 [N] 序号集合。
func extractCitedOrdinals(answer string) map[int]struct{} {
	matches := citationMarkerPattern.FindAllStringSubmatch(answer, -1)
	ordinals := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ordinals[n] = struct{}{}
	}
	return ordinals
}
