// Package relay pushes run events to an optional downstream delivery gateway
// over JSON-RPC. A missing gateway URL makes every push a no-op.
package relay

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"

	"github.com/fathomlab/fathom/domain"
)

type Client struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		addr:        resolveRPCAddr(baseURL),
		dialTimeout: 5 * time.Second,
		callTimeout: 5 * time.Second,
	}
}

// PushRequest represents the request body for downstream event delivery.
type PushRequest struct {
	ConversationID string       `json:"conversation_id"`
	Event          domain.Event `json:"event"`
}

// PushResponse represents the response for downstream event delivery.
type PushResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

func (c *Client) PushEvent(event domain.Event) error {
	if c.addr == "" {
		return nil
	}

	req := &PushRequest{
		ConversationID: event.ConversationID,
		Event:          event,
	}

	var resp PushResponse
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	if err := c.call(ctx, "Relay.PushEvent", req, &resp); err != nil {
		return fmt.Errorf("failed to push event to relay: %w", err)
	}
	if !resp.OK {
		log.Printf("WARN: relay rpc returned ok=false (delivered=%v)", resp.Delivered)
		return fmt.Errorf("relay rpc returned ok=false")
	}

	return nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
