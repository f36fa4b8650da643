package ws

import "encoding/json"

const (
	EventNewMessage  = "newMessage"
	EventOnlineUsers = "onlineUsers"
)

// Event 是服务端推送给客户端的统一信封。
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data})
}
