// Package file 提供基于本地 JSON 文件树的 Store 实现
package file

import (
	"fmt"
	"path/filepath"
)

// 工作区目录布局：
//
//	<workspace>/.fiction_ai/
//	  project.json
//	  books/<book_id>/
//	    book.json
//	    outline.md
//	    chapters/NNNN.json
//	    sessions/chat.jsonl
//	  snippets/
//	    snippets.jsonl
//	    snippets.db
const rootDirName = ".fiction_ai"

type paths struct {
	workspaceRoot string
}

func (p paths) rootDir() string {
	return filepath.Join(p.workspaceRoot, rootDirName)
}

func (p paths) projectFile() string {
	return filepath.Join(p.rootDir(), "project.json")
}

func (p paths) booksDir() string {
	return filepath.Join(p.rootDir(), "books")
}

func (p paths) bookDir(bookID string) string {
	return filepath.Join(p.booksDir(), bookID)
}

func (p paths) bookFile(bookID string) string {
	return filepath.Join(p.bookDir(bookID), "book.json")
}

func (p paths) outlineFile(bookID string) string {
	return filepath.Join(p.bookDir(bookID), "outline.md")
}

func (p paths) chaptersDir(bookID string) string {
	return filepath.Join(p.bookDir(bookID), "chapters")
}

func (p paths) chapterFile(bookID string, number int) string {
	return filepath.Join(p.chaptersDir(bookID), fmt.Sprintf("%04d.json", number))
}

func (p paths) chatLogFile(bookID string) string {
	return filepath.Join(p.bookDir(bookID), "sessions", "chat.jsonl")
}

func (p paths) snippetsDir() string {
	return filepath.Join(p.rootDir(), "snippets")
}

func (p paths) snippetsFile() string {
	return filepath.Join(p.snippetsDir(), "snippets.jsonl")
}

func (p paths) snippetsDBFile() string {
	return filepath.Join(p.snippetsDir(), "snippets.db")
}
