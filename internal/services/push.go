package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"love-album-backend/internal/config"
)

const pushTimeout = 10 * time.Second

// Pusher sends one notification to one device
type Pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// PushNotifier forwards warnings and errors to the owners' devices through APNs
type PushNotifier struct {
	client  Pusher
	topic   string
	devices []string
}

// NewPushNotifier creates a token based APNs client from configuration
func NewPushNotifier(cfg config.APNSConfig) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return NewPushNotifierWithClient(client, cfg.Topic, cfg.DeviceTokens), nil
}

// NewPushNotifierWithClient creates a push notifier around an existing client
func NewPushNotifierWithClient(client Pusher, topic string, devices []string) *PushNotifier {
	return &PushNotifier{client: client, topic: topic, devices: devices}
}

// Notify implements Notifier. Info level messages stay in the app.
func (p *PushNotifier) Notify(level Level, message string) {
	if level != LevelWarning && level != LevelError {
		return
	}
	go p.push(message)
}

func (p *PushNotifier) push(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	for _, device := range p.devices {
		n := &apns2.Notification{
			DeviceToken: device,
			Topic:       p.topic,
			Payload:     payload.NewPayload().AlertTitle("Love Album").AlertBody(message).Sound("default"),
		}

		res, err := p.client.PushWithContext(ctx, n)
		if err != nil {
			log.Error().Err(err).Str("device", device).Msg("Failed to send push notification")
			continue
		}
		if !res.Sent() {
			log.Warn().Int("status", res.StatusCode).Str("reason", res.Reason).Str("device", device).Msg("Push notification rejected")
		}
	}
}
