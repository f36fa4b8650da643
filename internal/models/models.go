package models

import "time"

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName     string    `gorm:"size:64;not null" json:"full_name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	AvatarURL    string    `gorm:"size:1024" json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public 返回去掉密码哈希的副本，供 handler 与 context 使用。
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Message 一经写入不可修改。Seq 是存储层的追加序号，决定读取顺序。
type Message struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID         string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	SenderID   string    `gorm:"index:idx_msg_pair,priority:1;size:36;not null" json:"sender_id"`
	ReceiverID string    `gorm:"index:idx_msg_pair,priority:2;size:36;not null" json:"receiver_id"`
	Text       string    `gorm:"type:text" json:"text,omitempty"`
	Image      string    `gorm:"size:1024" json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
