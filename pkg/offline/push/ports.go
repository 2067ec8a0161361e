// Package push manages the device's push subscription: permission, the
// platform registration and the server-side record.
package push

import "context"

// Permission is the notification permission granted by the user.
type Permission string

const (
	PermissionUnknown Permission = "default"
	PermissionDenied  Permission = "denied"
	PermissionGranted Permission = "granted"
)

// Registration is a platform push registration.
type Registration struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Platform is the device side of push: permission prompts and the push
// manager registration.
type Platform interface {
	Supported() bool
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission prompts the user.
	RequestPermission(ctx context.Context) (Permission, error)
	// Registration returns the current registration or nil.
	Registration(ctx context.Context) (*Registration, error)
	Register(ctx context.Context, applicationServerKey string) (*Registration, error)
	Unregister(ctx context.Context) error
}

// Keys are the subscription's encryption keys.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// DeviceInfo describes the device registering for push.
type DeviceInfo struct {
	UserAgent  string `json:"userAgent,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Language   string `json:"language,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceHash string `json:"deviceHash,omitempty"`
}

// SubscribeRequest is posted to the server after registering.
type SubscribeRequest struct {
	Endpoint   string      `json:"endpoint"`
	Keys       Keys        `json:"keys"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
}

// Server is the notification server's subscription API.
type Server interface {
	GetVAPIDPublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, req SubscribeRequest) error
	Unsubscribe(ctx context.Context, endpoint string) error
}
