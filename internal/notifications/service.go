package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/muilab/notigpt/internal/logger"
	"google.golang.org/api/option"
)

const previewLength = 120

// Sender delivers one FCM message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Service sends push notifications via Firebase Cloud Messaging.
type Service struct {
	sender  Sender
	tokens  *TokenStore
	logger  *logger.Logger
	enabled bool
}

// NewMessagingClient creates an FCM client from a service-account JSON.
func NewMessagingClient(ctx context.Context, projectID, credJSON string) (*messaging.Client, error) {
	var config *firebase.Config
	if projectID != "" {
		config = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, config, option.WithCredentialsJSON([]byte(credJSON)))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return client, nil
}

// NewService creates a push notification service. When enabled is false every
// send is skipped.
func NewService(sender Sender, tokens *TokenStore, logger *logger.Logger, enabled bool) *Service {
	return &Service{
		sender:  sender,
		tokens:  tokens,
		logger:  logger.WithComponent("push-notifications"),
		enabled: enabled && sender != nil,
	}
}

// SendDigestReady tells every registered device that a digest finished.
func (s *Service) SendDigestReady(ctx context.Context, digestID, mode, text string) error {
	notification := DigestNotification{
		Title: "Digest ready",
		Body:  preview(text),
		Data: map[string]string{
			"digest_id": digestID,
			"mode":      mode,
			"type":      string(TypeDigestReady),
		},
	}
	if notification.Body == "" {
		notification.Body = "No new notifications since the last digest."
	}

	return s.sendNotification(ctx, notification)
}

// sendNotification sends a notification to all registered devices. It fails
// only when every delivery failed.
func (s *Service) sendNotification(ctx context.Context, notification DigestNotification) error {
	log := s.logger.WithContext(ctx)

	if !s.enabled {
		log.Debug("push notifications disabled, skipping",
			slog.String("notification_type", notification.Data["type"]))
		return nil
	}

	devices, err := s.tokens.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve push tokens: %w", err)
	}
	if len(devices) == 0 {
		log.Debug("no registered devices")
		return nil
	}

	var failed int
	for _, device := range devices {
		result := s.sendToDevice(ctx, device, notification)
		if !result.Success {
			failed++
			log.Warn("push delivery failed",
				slog.String("device_id", device.DeviceID),
				slog.String("token_prefix", result.Token),
				slog.String("error", result.Error))
		}
	}

	log.Info("push notifications sent",
		slog.String("type", notification.Data["type"]),
		slog.Int("total_devices", len(devices)),
		slog.Int("successful", len(devices)-failed),
		slog.Int("failed", failed))

	if failed == len(devices) {
		return fmt.Errorf("all %d notification(s) failed", failed)
	}

	return nil
}

func (s *Service) sendToDevice(ctx context.Context, device Device, notification DigestNotification) SendResult {
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data:  notification.Data,
		Token: device.Token,
	}

	tokenPrefix := device.Token[:min(10, len(device.Token))] + "..."

	response, err := s.sender.Send(ctx, message)
	if err != nil {
		return SendResult{Token: tokenPrefix, Success: false, Error: err.Error()}
	}

	return SendResult{Token: tokenPrefix, Success: true, Response: response}
}

// preview shortens text to previewLength runes.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength-1]) + "…"
}
