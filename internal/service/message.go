package service

import (
	"context"

	"pairchat/internal/models"
	"pairchat/internal/store"
)

// MessageService 封装消息历史查询。
type MessageService struct {
	messages store.MessageStore
}

func NewMessageService(messages store.MessageStore) *MessageService {
	return &MessageService{messages: messages}
}

// History 返回当前用户与 peer 的双向消息，按追加顺序升序。
// peer 不存在时返回空列表而不是错误。
func (s *MessageService) History(ctx context.Context, me, peer string) ([]models.Message, error) {
	return s.messages.ListBetween(ctx, me, peer)
}
