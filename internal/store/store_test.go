package store

import (
	"strings"
	"testing"

	"pairchat/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCheckMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     models.Message
		wantErr bool
	}{
		{"text only", models.Message{SenderID: "a", ReceiverID: "b", Text: "hello"}, false},
		{"image only", models.Message{SenderID: "a", ReceiverID: "b", Image: "https://cdn/x.png"}, false},
		{"both", models.Message{SenderID: "a", ReceiverID: "b", Text: "hi", Image: "https://cdn/x.png"}, false},
		{"empty body", models.Message{SenderID: "a", ReceiverID: "b"}, true},
		{"whitespace text", models.Message{SenderID: "a", ReceiverID: "b", Text: "   "}, false},
		{"empty text and image", models.Message{SenderID: "a", ReceiverID: "b", Text: "", Image: ""}, true},
		{"missing sender", models.Message{ReceiverID: "b", Text: "hi"}, true},
		{"missing receiver", models.Message{SenderID: "a", Text: "hi"}, true},
		{"text at limit", models.Message{SenderID: "a", ReceiverID: "b", Text: strings.Repeat("x", MaxTextLength)}, false},
		{"text over limit", models.Message{SenderID: "a", ReceiverID: "b", Text: strings.Repeat("x", MaxTextLength+1)}, true},
		{"multibyte at limit", models.Message{SenderID: "a", ReceiverID: "b", Text: strings.Repeat("é", MaxTextLength)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMessage(&tt.msg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}
