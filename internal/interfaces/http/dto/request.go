// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// BookIDRequest 书 ID 请求
type BookIDRequest struct {
	BookID string `uri:"bid" binding:"required"`
}

// BindBookID 从 URI 绑定书 ID
func BindBookID(c *gin.Context) string {
	return c.Param("bid")
}

// QueryInt 读取整型查询参数，缺失或非法时返回默认值
func QueryInt(c *gin.Context, key string, defaultVal int) int {
	s := c.Query(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// QueryBool 读取布尔查询参数
func QueryBool(c *gin.Context, key string) bool {
	switch c.Query(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
