package services

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/pkg/config"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/serviceworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPushService(t *testing.T) *WebPushService {
	t.Helper()
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	svc, err := NewWebPushService(config.PushConfig{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		VAPIDSubject:    "mailto:ops@fitlife.example",
		TTL:             60,
	}, nil)
	require.NoError(t, err)
	return svc
}

func clientSubscription(t *testing.T, endpoint string) *entities.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return entities.NewPushSubscription("sub-1", "member-1", endpoint, entities.PushKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(auth),
	}, nil)
}

func testMessage() serviceworker.PushMessage {
	return serviceworker.PushMessage{
		Title: "Class reminder",
		Body:  "Yoga starts soon",
		Data:  serviceworker.PushData{NotificationID: "n1", Type: "appointment", URL: "/dashboard/appointments/a1"},
	}
}

func TestNewWebPushService_RequiresKeys(t *testing.T) {
	_, err := NewWebPushService(config.PushConfig{}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeKeyFetchFailed))
}

func TestWebPushService_Send(t *testing.T) {
	var hits int32
	var gotTTL, gotAuth, gotEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotTTL = r.Header.Get("TTL")
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	svc := newTestPushService(t)
	err := svc.Send(context.Background(), testMessage(), clientSubscription(t, server.URL+"/push/abc"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Equal(t, "60", gotTTL)
	assert.True(t, strings.HasPrefix(gotAuth, "vapid "))
	assert.Equal(t, "aes128gcm", gotEncoding)
}

func TestWebPushService_SendStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   pkgerrors.Code
	}{
		{name: "gone", status: http.StatusGone, code: pkgerrors.CodeSubscriptionExpired},
		{name: "not found", status: http.StatusNotFound, code: pkgerrors.CodeSubscriptionExpired},
		{name: "too many requests", status: http.StatusTooManyRequests, code: pkgerrors.CodeServerRejected},
		{name: "server error", status: http.StatusInternalServerError, code: pkgerrors.CodeServerRejected},
	}

	svc := newTestPushService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := svc.Send(context.Background(), testMessage(), clientSubscription(t, server.URL))
			require.Error(t, err)
			assert.Equal(t, tt.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestWebPushService_SendNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	svc := newTestPushService(t)
	err := svc.Send(context.Background(), testMessage(), clientSubscription(t, endpoint))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNetworkUnavailable))
	assert.True(t, pkgerrors.As(err).Retryable())
}
