package model

import "time"

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationTurn 对应 conversation_turns 表。(UserID, Seq) 唯一，Seq 按用户单调递增。
// Provider 仅记录回答来自哪个模型提供方，不进入对话内容。
type ConversationTurn struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_turn_user_seq,priority:1" json:"userId"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_turn_user_seq,priority:2" json:"seq"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Provider  string    `gorm:"type:varchar(64)" json:"provider,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

// ValidRole 判断是否为可持久化的对话角色。
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// HistoryItemDTO 是返回给前端的对话记录。
type HistoryItemDTO struct {
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp LocalTime `json:"timestamp"`
}
