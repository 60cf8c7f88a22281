package writing

import (
	"context"
	"fmt"
	"strings"

	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	apperrors "fiction-ai-api/pkg/errors"
	"fiction-ai-api/pkg/metrics"
)

// RunOptions 批量生成参数。EndNumber 为 0 时从大纲推断计划章数。
type RunOptions struct {
	BookID             string
	StartNumber        int
	EndNumber          int
	Instruction        string
	TargetChapterWords *int
	RetrieveQuery      string
	RetrieveLimit      int
	Overwrite          bool
}

// BatchResult 批量生成结果：已生成与被跳过的章号
type BatchResult struct {
	BookID      string `json:"book_id"`
	StartNumber int    `json:"start_number"`
	EndNumber   int    `json:"end_number"`
	Generated   []int  `json:"generated_numbers"`
	Skipped     []int  `json:"skipped_numbers"`
}

// EventType 流式进度事件类型
type EventType string

const (
	EventMeta         EventType = "meta"
	EventChapterStart EventType = "chapter_start"
	EventChapterToken EventType = "chapter_token"
	EventChapterEnd   EventType = "chapter_end"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// Event 流式进度事件，Data 由传输层负责序列化
type Event struct {
	Type EventType
	Data any
}

// EmitFunc 事件回调；返回错误表示消费端已断开，生成应当停止
type EmitFunc func(Event) error

// Runner 驱动章节生成状态机：
// 大纲检查 → 存在检查 → 片段检索 → 生成 → 落盘。
// 批量模式严格按章号升序逐章执行，同时只有一个生成调用在途。
type Runner struct {
	store  repository.Store
	engine *retrieval.Engine
	writer *Writer
}

// NewRunner 创建生成执行器
func NewRunner(store repository.Store, engine *retrieval.Engine, writer *Writer) *Runner {
	return &Runner{store: store, engine: engine, writer: writer}
}

// GenerateChapter 对单个章号执行一遍状态机。
// 返回章节、检索命中的片段；章节已存在且不允许覆盖时返回冲突错误。
func (r *Runner) GenerateChapter(ctx context.Context, state *entity.BookState, outline string, number int, opts RunOptions) (*entity.Chapter, []*entity.Snippet, error) {
	existing, err := r.store.LoadChapter(ctx, opts.BookID, number)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to check existing chapter")
	}
	if existing != nil && !opts.Overwrite {
		return nil, nil, apperrors.New(apperrors.CodeChapterAlreadyExists,
			"chapter already exists (set overwrite=true to regenerate)").
			WithDetails(map[string]any{"book_id": opts.BookID, "number": number})
	}

	hits, retrievedText, err := r.retrieve(ctx, state, number, opts)
	if err != nil {
		return nil, nil, err
	}

	content, err := r.writer.WriteChapter(ctx, r.chapterRequest(state, outline, number, retrievedText, opts))
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeLLMConnectionError,
			"llm error during chapter generation").
			WithDetails(map[string]any{"book_id": opts.BookID, "chapter_number": number})
	}

	chapter := entity.NewChapter(opts.BookID, number, "", content)
	if err := r.store.SaveChapter(ctx, chapter); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save chapter")
	}
	metrics.ChaptersGeneratedTotal.Inc()
	metrics.ChapterWordCount.Observe(float64(chapter.WordCount()))
	return chapter, hits, nil
}

// ResolveRange 计算批量生成的章号区间；EndNumber 缺省时从大纲推断
func (r *Runner) ResolveRange(outline string, opts RunOptions) (int, int, error) {
	start := opts.StartNumber
	if start == 0 {
		start = 1
	}
	end := opts.EndNumber
	if end == 0 {
		planned, ok := PlannedLastChapter(outline)
		if !ok {
			return 0, 0, apperrors.New(apperrors.CodeOutlineChaptersNotFound,
				"could not infer chapter count from outline; please ensure outline contains '第N章' entries").
				WithDetails(map[string]any{"book_id": opts.BookID})
		}
		end = planned
	}
	if start <= 0 || end <= 0 || start > end {
		return 0, 0, apperrors.New(apperrors.CodeValidation, "invalid chapter range").
			WithDetails(map[string]any{"start_number": start, "end_number": end})
	}
	return start, end, nil
}

// GenerateBatch 批量生成 [start, end] 区间。
// 第 K 章失败时，K 之前已生成的章节保留，K 及之后全部放弃，
// 错误详情里带上已完成的进度。
func (r *Runner) GenerateBatch(ctx context.Context, state *entity.BookState, outline string, opts RunOptions) (*BatchResult, error) {
	start, end, err := r.ResolveRange(outline, opts)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		BookID:      opts.BookID,
		StartNumber: start,
		EndNumber:   end,
		Generated:   []int{},
		Skipped:     []int{},
	}

	for number := start; number <= end; number++ {
		existing, err := r.store.LoadChapter(ctx, opts.BookID, number)
		if err != nil {
			return result, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to check existing chapter")
		}
		if existing != nil && !opts.Overwrite {
			result.Skipped = append(result.Skipped, number)
			continue
		}

		_, retrievedText, err := r.retrieve(ctx, state, number, opts)
		if err != nil {
			return result, err
		}

		content, err := r.writer.WriteChapter(ctx, r.chapterRequest(state, outline, number, retrievedText, opts))
		if err != nil {
			return result, apperrors.Wrap(err, apperrors.CodeLLMConnectionError,
				"llm error during chapter generation").
				WithDetails(map[string]any{
					"book_id":           opts.BookID,
					"chapter_number":    number,
					"generated_numbers": result.Generated,
					"skipped_numbers":   result.Skipped,
				})
		}

		chapter := entity.NewChapter(opts.BookID, number, "", content)
		if err := r.store.SaveChapter(ctx, chapter); err != nil {
			return result, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save chapter").
				WithDetails(map[string]any{
					"chapter_number":    number,
					"generated_numbers": result.Generated,
					"skipped_numbers":   result.Skipped,
				})
		}
		metrics.ChaptersGeneratedTotal.Inc()
		metrics.ChapterWordCount.Observe(float64(chapter.WordCount()))
		result.Generated = append(result.Generated, number)
	}
	return result, nil
}

// GenerateBatchStream 流式批量生成。事件按章号严格有序：
// 第 N 章的 token 全部发完才会开始第 N+1 章。emit 返回错误
// 视为消费端断开，生成就地停止。
func (r *Runner) GenerateBatchStream(ctx context.Context, state *entity.BookState, outline string, opts RunOptions, emit EmitFunc) error {
	start, end, err := r.ResolveRange(outline, opts)
	if err != nil {
		return err
	}

	generated := []int{}
	skipped := []int{}

	if err := emit(Event{Type: EventMeta, Data: map[string]any{
		"book_id":      opts.BookID,
		"start_number": start,
		"end_number":   end,
		"overwrite":    opts.Overwrite,
	}}); err != nil {
		return err
	}

	for number := start; number <= end; number++ {
		existing, err := r.store.LoadChapter(ctx, opts.BookID, number)
		if err != nil {
			return r.emitError(emit, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to check existing chapter"))
		}
		if existing != nil && !opts.Overwrite {
			skipped = append(skipped, number)
			if err := emit(Event{Type: EventChapterEnd, Data: map[string]any{
				"number": number, "saved": false, "skipped": true,
			}}); err != nil {
				return err
			}
			continue
		}

		_, retrievedText, err := r.retrieve(ctx, state, number, opts)
		if err != nil {
			return r.emitError(emit, err)
		}

		title := entity.DefaultChapterTitle(number)
		if err := emit(Event{Type: EventChapterStart, Data: map[string]any{
			"number": number, "title": title,
		}}); err != nil {
			return err
		}

		var emitErr error
		content, err := r.writer.StreamChapter(ctx, r.chapterRequest(state, outline, number, retrievedText, opts), func(delta string) {
			if emitErr != nil {
				return
			}
			emitErr = emit(Event{Type: EventChapterToken, Data: map[string]any{
				"number": number, "delta": delta,
			}})
		})
		if emitErr != nil {
			return emitErr
		}
		if err != nil {
			return r.emitError(emit, apperrors.Wrap(err, apperrors.CodeLLMConnectionError,
				"llm error during chapter generation").
				WithDetails(map[string]any{
					"book_id":           opts.BookID,
					"chapter_number":    number,
					"generated_numbers": generated,
					"skipped_numbers":   skipped,
				}))
		}

		chapter := entity.NewChapter(opts.BookID, number, title, content)
		if err := r.store.SaveChapter(ctx, chapter); err != nil {
			return r.emitError(emit, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save chapter"))
		}
		metrics.ChaptersGeneratedTotal.Inc()
		metrics.ChapterWordCount.Observe(float64(chapter.WordCount()))
		generated = append(generated, number)

		if err := emit(Event{Type: EventChapterEnd, Data: map[string]any{
			"number": number, "saved": true,
		}}); err != nil {
			return err
		}
	}

	return emit(Event{Type: EventDone, Data: map[string]any{
		"generated_numbers": generated,
		"skipped_numbers":   skipped,
	}})
}

func (r *Runner) emitError(emit EmitFunc, appErr error) error {
	e := apperrors.AsAppError(appErr)
	if err := emit(Event{Type: EventError, Data: map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}}); err != nil {
		return err
	}
	return appErr
}

// retrieve 为一章组装检索上下文；检索词缺省用指令或书名兜底
func (r *Runner) retrieve(ctx context.Context, state *entity.BookState, number int, opts RunOptions) ([]*entity.Snippet, string, error) {
	query := opts.RetrieveQuery
	if query == "" {
		query = opts.Instruction
	}
	if query == "" {
		query = state.Title
	}
	limit := opts.RetrieveLimit
	if limit <= 0 {
		limit = retrieval.DefaultLimit
	}

	hits, err := r.engine.Search(ctx, opts.BookID, query, limit)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "snippet retrieval failed")
	}

	var lines []string
	for _, h := range hits {
		lines = append(lines, "- "+h.Text)
	}
	return hits, strings.Join(lines, "\n"), nil
}

func (r *Runner) chapterRequest(state *entity.BookState, outline string, number int, retrievedText string, opts RunOptions) ChapterRequest {
	instruction := opts.Instruction
	if instruction == "" {
		instruction = fmt.Sprintf("写第%d章", number)
	} else {
		instruction = fmt.Sprintf("%s\n\n写第%d章", instruction, number)
	}
	return ChapterRequest{
		Title:              state.Title,
		ChapterNumber:      number,
		OutlineMarkdown:    outline,
		Premise:            state.Premise,
		Genre:              state.Genre,
		TargetChapterWords: opts.TargetChapterWords,
		ExtraInstruction:   instruction,
		RetrievedSnippets:  retrievedText,
	}
}
