// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, generateLimit gin.HandlerFunc) {
	// 对话回合入口
	v1.POST("/turns", h.Turn.HandleTurn)

	// 书管理
	books := v1.Group("/books")
	{
		books.GET("", h.Book.ListBooks)
		books.POST("", h.Book.CreateBook)
		books.GET("/:bid", h.Book.GetBook)
		books.PATCH("/:bid", h.Book.UpdateBook)
		books.POST("/:bid/activate", h.Book.ActivateBook)
		books.DELETE("/:bid", h.Book.DeleteBook)

		// 大纲
		books.GET("/:bid/outline", h.Book.GetOutline)
		books.POST("/:bid/outline/generate", generateLimit, h.Book.GenerateOutline)

		// 章节
		books.GET("/:bid/chapters", h.Chapter.ListChapters)
		books.GET("/:bid/chapters/:number", h.Chapter.GetChapter)
		books.POST("/:bid/chapters/generate", generateLimit, h.Chapter.GenerateChapter)
		books.POST("/:bid/chapters/all", generateLimit, h.Chapter.GenerateAll)
		books.GET("/:bid/chapters/all/stream", generateLimit, h.Stream.StreamGenerateAll) // SSE

		// 对话日志
		books.GET("/:bid/chatlog", h.Snippet.ListChatLog)
	}

	// 参考片段
	snippets := v1.Group("/snippets")
	{
		snippets.POST("", h.Snippet.CreateSnippet)
		snippets.GET("/search", h.Snippet.SearchSnippets)
	}
}
