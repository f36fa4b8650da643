package service

import (
	"context"
	"fmt"

	"pairchat/internal/blob"
	"pairchat/internal/metrics"
	"pairchat/internal/models"
	"pairchat/internal/store"
	"pairchat/internal/ws"

	"github.com/rs/zerolog/log"
)

// SendInput 是发送请求的消息体，Image 为 data URL 或 http(s) URL。
type SendInput struct {
	Text  string
	Image string
}

// Dispatcher 先持久化消息，再尽力推送给接收方的在线连接。
// 两步相互独立：推送失败不影响已落盘的消息，接收方下次拉取历史时可见。
type Dispatcher struct {
	messages store.MessageStore
	blobs    blob.Uploader
	registry *ws.Registry
}

func NewDispatcher(messages store.MessageStore, blobs blob.Uploader, registry *ws.Registry) *Dispatcher {
	return &Dispatcher{messages: messages, blobs: blobs, registry: registry}
}

// Send 调用方须已通过 Authenticator 确认 senderID。
func (d *Dispatcher) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*models.Message, error) {
	msg := &models.Message{SenderID: senderID, ReceiverID: receiverID, Text: in.Text, Image: in.Image}
	// 先校验再上传，避免为无效消息转存图片。
	if err := store.CheckMessage(msg); err != nil {
		return nil, err
	}
	if in.Image != "" {
		url, err := d.blobs.Upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		msg.Image = url
	}
	if err := d.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.MessagesTotal.Inc()

	d.notify(msg)
	return msg, nil
}

func (d *Dispatcher) notify(msg *models.Message) {
	h, ok := d.registry.Lookup(msg.ReceiverID)
	if !ok {
		metrics.PushTotal.WithLabelValues(metrics.PushOffline).Inc()
		return
	}
	payload, err := ws.Encode(ws.EventNewMessage, msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("encode new message event")
		metrics.PushTotal.WithLabelValues(metrics.PushDropped).Inc()
		return
	}
	if err := h.Push(payload); err != nil {
		log.Debug().Err(err).Str("message_id", msg.ID).Str("receiver_id", msg.ReceiverID).Msg("push new message")
		metrics.PushTotal.WithLabelValues(metrics.PushDropped).Inc()
		return
	}
	metrics.PushTotal.WithLabelValues(metrics.PushDelivered).Inc()
}
