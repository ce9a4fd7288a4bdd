package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// GrantKey stores one device grant, keyed by device code.
func GrantKey(deviceCode string) string {
	return fmt.Sprintf("devicegrant:%s", deviceCode)
}

// UserCodeKey indexes a grant's device code by its user code.
func UserCodeKey(userCode string) string {
	return fmt.Sprintf("usercode:%s", userCode)
}

// PollKey throttles token-endpoint polling per device code.
func PollKey(deviceCode string) string {
	return fmt.Sprintf("devicepoll:%s", deviceCode)
}

// ChatChannel carries streamed assistant output for one conversation.
func ChatChannel(conversationID string) string {
	return fmt.Sprintf("chat:%s", conversationID)
}
