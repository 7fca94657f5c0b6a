package model

import "time"

// UserRoleAdmin 是管理员角色名。
const UserRoleAdmin = "ADMIN"

// User 对应 users 表。账号由外部认证系统维护，这里只读取。
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Role      string    `gorm:"type:varchar(32);not null;default:USER" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
