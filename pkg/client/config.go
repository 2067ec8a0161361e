package client

import (
	"github.com/fitlife/fitlife-sync/pkg/config"
)

// NewClientFromConfig creates a client for the configured base URL and
// token.
func NewClientFromConfig(cfg config.ClientConfig, opts ...Option) *Client {
	if cfg.Token != "" {
		opts = append([]Option{WithToken(cfg.Token)}, opts...)
	}
	return NewClient(cfg.BaseURL, opts...)
}

// NewClientFromEnv loads configuration from the environment and creates a
// client from its client section.
func NewClientFromEnv(opts ...Option) (*Client, *config.ClientConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return NewClientFromConfig(cfg.Client, opts...), &cfg.Client, nil
}
