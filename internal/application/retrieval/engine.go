// Package retrieval 提供片段的词法检索。
// 结构化索引对未分词的中文不可靠，所以按查询是否含 CJK 字符
// 在两种策略之间切换主次顺序。
package retrieval

import (
	"context"
	"strings"
	"unicode"

	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/pkg/logger"
	"fiction-ai-api/pkg/metrics"
)

// DefaultLimit 未指定 limit 时的默认返回条数
const DefaultLimit = 5

// Engine 片段检索引擎
type Engine struct {
	store repository.Store
}

// NewEngine 创建检索引擎
func NewEngine(store repository.Store) *Engine {
	return &Engine{store: store}
}

// Search 返回对 bookID 可见、与 query 词法匹配的片段，最多 limit 条。
// CJK 查询以子串扫描为主、索引为辅；其余查询以索引为主，
// 仅当索引零命中时回退到子串扫描。主策略的排序优先保留。
func (e *Engine) Search(ctx context.Context, bookID, query string, limit int) ([]*entity.Snippet, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	if IsIdeographHeavy(q) {
		primary, err := e.substringScan(ctx, bookID, q)
		if err != nil {
			metrics.SnippetSearchTotal.WithLabelValues("substring", "error").Inc()
			return nil, err
		}
		metrics.SnippetSearchTotal.WithLabelValues("substring", "ok").Inc()

		// 索引缺失或报错按空结果处理
		secondary, err := e.store.SearchSnippetIndex(ctx, bookID, q, limit)
		if err != nil {
			logger.Debug(ctx, "snippet index lookup failed, ignoring", "error", err.Error())
			secondary = nil
		}
		return merge(primary, secondary, limit), nil
	}

	primary, err := e.store.SearchSnippetIndex(ctx, bookID, q, limit)
	if err != nil {
		metrics.SnippetSearchTotal.WithLabelValues("index", "error").Inc()
		return nil, err
	}
	metrics.SnippetSearchTotal.WithLabelValues("index", "ok").Inc()
	if len(primary) > 0 {
		return merge(primary, nil, limit), nil
	}

	secondary, err := e.substringScan(ctx, bookID, q)
	if err != nil {
		return nil, err
	}
	return merge(nil, secondary, limit), nil
}

// substringScan 对可见片段做大小写不敏感的子串匹配，命中按创建时间倒序
func (e *Engine) substringScan(ctx context.Context, bookID, query string) ([]*entity.Snippet, error) {
	all, err := e.store.ListSnippets(ctx, bookID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var hits []*entity.Snippet
	for _, sn := range all {
		if matchesSubstring(sn, q) {
			hits = append(hits, sn)
		}
	}
	return hits, nil
}

func matchesSubstring(sn *entity.Snippet, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(sn.Title), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(sn.Text), lowerQuery) {
		return true
	}
	for _, tag := range sn.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return true
		}
	}
	return false
}

// merge 先主后次，按片段 ID 去重，截断到 limit
func merge(primary, secondary []*entity.Snippet, limit int) []*entity.Snippet {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	var out []*entity.Snippet
	for _, sn := range primary {
		if _, ok := seen[sn.SnippetID]; ok {
			continue
		}
		seen[sn.SnippetID] = struct{}{}
		out = append(out, sn)
	}
	for _, sn := range secondary {
		if _, ok := seen[sn.SnippetID]; ok {
			continue
		}
		seen[sn.SnippetID] = struct{}{}
		out = append(out, sn)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IsIdeographHeavy 查询是否包含 CJK 字符
func IsIdeographHeavy(query string) bool {
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
