package file

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"fiction-ai-api/internal/domain/entity"
)

// snippetIndex 片段的 SQLite FTS5 索引。
// unicode61 分词器按空白与标点切词，纯 CJK 文本整句成一个 token，
// 所以检索层对 CJK 查询走子串为主、索引为辅的策略。
type snippetIndex struct {
	db *sql.DB
}

const snippetIndexSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
	snippet_id UNINDEXED,
	book_id UNINDEXED,
	title,
	body,
	tags
);`

func openSnippetIndex(path string) (*snippetIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 单写者，避免锁争用
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(snippetIndexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fts table: %w", err)
	}
	return &snippetIndex{db: db}, nil
}

func (x *snippetIndex) Close() error {
	return x.db.Close()
}

// Add 写入一条片段索引记录
func (x *snippetIndex) Add(ctx context.Context, snippet *entity.Snippet) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO snippets_fts (snippet_id, book_id, title, body, tags)
		VALUES (?, ?, ?, ?, ?)`,
		snippet.SnippetID, snippet.BookID, snippet.Title, snippet.Text,
		strings.Join(snippet.Tags, " "))
	return err
}

// Search 按 BM25 排名返回命中的片段 ID
func (x *snippetIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	ftsQuery := sanitizeFTS5(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT snippet_id FROM snippets_fts
		WHERE snippets_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBook 清除某本书的全部索引记录；FTS5 虚表不支持级联，手动删
func (x *snippetIndex) DeleteBook(ctx context.Context, bookID string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM snippets_fts WHERE book_id = ?`, bookID)
	return err
}

// sanitizeFTS5 去掉会被 FTS5 当作语法操作符的字符
func sanitizeFTS5(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch r {
		case '"', '*', '(', ')', '+', '-', '^', ':', ',', '{', '}', '!', '~', '?':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
