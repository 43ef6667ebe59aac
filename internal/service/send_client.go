package service

import (
	"context"
	"strings"

	"virkum-respond/internal/domain"

	"go.uber.org/zap"
)

// SendClient выполняет ровно одну попытку отправки через Mailer.
type SendClient struct {
	mailer Mailer
	logger *zap.Logger
}

// NewSendClient создает SendClient.
func NewSendClient(mailer Mailer, logger *zap.Logger) *SendClient {
	return &SendClient{mailer: mailer, logger: logger.Named("send_client")}
}

// Send отправляет письмо. Пустой получатель дает Attempted == false без обращения к релею.
func (c *SendClient) Send(ctx context.Context, msg domain.OutboundMessage) domain.SendOutcome {
	if strings.TrimSpace(msg.To) == "" {
		return domain.NotAttempted()
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		c.logger.Warn("Send failed", zap.String("company", msg.CompanyName), zap.Error(err))
		return domain.SendOutcome{Attempted: true, Success: false, Error: err.Error()}
	}
	return domain.SendOutcome{Attempted: true, Success: true}
}
