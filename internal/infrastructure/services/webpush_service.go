package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/pkg/config"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
)

const defaultPushTimeout = 10 * time.Second

// WebPushService delivers push messages through the browser push services
// using VAPID authentication.
type WebPushService struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	httpClient webpush.HTTPClient
}

// NewWebPushService creates a WebPushService. Both VAPID keys must be set.
func NewWebPushService(cfg config.PushConfig, httpClient webpush.HTTPClient) (*WebPushService, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeKeyFetchFailed, "VAPID configuration required: set "+
			config.EnvVAPIDPublicKey+" and "+config.EnvVAPIDPrivateKey)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultPushTimeout}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 86400
	}
	return &WebPushService{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		// webpush-go adds the mailto: scheme itself.
		subscriber: strings.TrimPrefix(cfg.VAPIDSubject, "mailto:"),
		ttl:        ttl,
		httpClient: httpClient,
	}, nil
}

func (s *WebPushService) PublicKey() string {
	return s.publicKey
}

// Send encrypts msg for the subscription and posts it to its endpoint.
// 404 and 410 responses mean the subscription is gone.
func (s *WebPushService) Send(ctx context.Context, msg serviceworker.PushMessage, sub *entities.PushSubscription) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription cannot be nil")
	}

	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	keys := sub.Keys()
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint(),
		Keys: webpush.Keys{
			P256dh: keys.P256dh,
			Auth:   keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNetworkUnavailable, ctx.Err(), "push request cancelled")
		}
		return pkgerrors.Wrap(pkgerrors.CodeNetworkUnavailable, err, "failed to reach push service")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return classifyPushResponse(resp.StatusCode)
}

func classifyPushResponse(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return pkgerrors.Newf(pkgerrors.CodeSubscriptionExpired, "push subscription expired (status %d)", status)
	default:
		return pkgerrors.Newf(pkgerrors.CodeServerRejected, "notification rejected with status %d", status)
	}
}
