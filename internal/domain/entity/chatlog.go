package entity

import (
	"time"
)

// ChatLogEntry 对话日志条目，追加写入，除整书级联删除外从不修改
type ChatLogEntry struct {
	ID                  int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	BookID              string    `json:"-" gorm:"type:uuid;index"`
	Timestamp           time.Time `json:"ts"`
	Utterance           string    `json:"user" gorm:"type:text"`
	Intent              string    `json:"intent" gorm:"type:varchar(64)"`
	Saved               []string  `json:"saved,omitempty" gorm:"type:jsonb;serializer:json"`
	RetrievedSnippetIDs []string  `json:"retrieved_snippet_ids,omitempty" gorm:"type:jsonb;serializer:json"`
}

// TableName 指定表名
func (ChatLogEntry) TableName() string {
	return "chat_logs"
}
