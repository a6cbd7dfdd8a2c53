package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// Config holds Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
}

// Messenger delivers pipeline notifications as Lark text messages. It
// implements the dispatcher's Channel interface; recipient ids are Lark
// user ids supplied by the identity provider.
type Messenger struct {
	client *lark.Client
	logger *zap.Logger
}

// NewMessenger creates a Lark-backed delivery channel
func NewMessenger(cfg Config, logger *zap.Logger) *Messenger {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return &Messenger{client: client, logger: logger}
}

// Send delivers one notification as a text message to the recipient.
func (m *Messenger) Send(ctx context.Context, event *models.NotificationEvent) error {
	if event.RecipientID == "" {
		return fmt.Errorf("recipient id is empty")
	}

	content, err := json.Marshal(map[string]string{"text": event.Message})
	if err != nil {
		return fmt.Errorf("failed to build message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("user_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(event.RecipientID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Lark message sent",
		zap.String("transaction_id", event.TransactionID),
		zap.String("recipient_id", event.RecipientID),
		zap.String("message_id", messageID))

	return nil
}

// Name identifies the channel in logs and audit events.
func (m *Messenger) Name() string {
	return "lark"
}
