// Package rcon queries the game server's remote console.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gorcon "github.com/gorcon/rcon"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

const (
	// DefaultTimeout bounds a single query when the caller passes zero.
	DefaultTimeout = 10 * time.Second
	// DefaultRetryDelay spaces out attempts in PlayerInfo.
	DefaultRetryDelay = 500 * time.Millisecond

	playerInfoCommand = "pinfo %s"
)

// Conn is one authenticated console session.
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

// Dialer opens and authenticates a new console session.
type Dialer func(ctx context.Context, addr, password string, timeout time.Duration) (Conn, error)

// DialTCP is the production Dialer using the Source RCON protocol.
func DialTCP(_ context.Context, addr, password string, timeout time.Duration) (Conn, error) {
	conn, err := gorcon.Dial(addr, password, gorcon.SetDialTimeout(timeout), gorcon.SetDeadline(timeout))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config holds connection parameters.
type Config struct {
	Addr       string
	Password   string
	RetryDelay time.Duration
}

// Client issues console commands over a fresh connection per call.
type Client struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger
}

// NewClient builds a Client. A nil dial uses DialTCP.
func NewClient(cfg Config, dial Dialer, logger *slog.Logger) *Client {
	if dial == nil {
		dial = DialTCP
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Client{cfg: cfg, dial: dial, logger: logger}
}

type queryResult struct {
	response string
	err      error
}

// Query sends command and returns the reply. Every failure (dial, auth,
// transport, timeout) is reported as shared.ErrUnavailable.
func (c *Client) Query(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan queryResult, 1)
	go func() {
		done <- c.execute(ctx, command, timeout)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("rcon: %q: %w: %v", command, shared.ErrUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("rcon: %q: %w: %v", command, shared.ErrUnavailable, res.err)
		}
		return res.response, nil
	}
}

func (c *Client) execute(ctx context.Context, command string, timeout time.Duration) queryResult {
	conn, err := c.dial(ctx, c.cfg.Addr, c.cfg.Password, timeout)
	if err != nil {
		return queryResult{err: fmt.Errorf("dial: %w", err)}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			c.logger.Debug("rcon close", slog.Any("error", cerr))
		}
	}()
	resp, err := conn.Execute(command)
	if err != nil {
		return queryResult{err: fmt.Errorf("execute: %w", err)}
	}
	return queryResult{response: resp}
}

// PlayerInfo runs "pinfo <identity>" up to attempts times and returns the
// first successful reply.
func (c *Client) PlayerInfo(ctx context.Context, identity string, timeout time.Duration, attempts int) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	command := fmt.Sprintf(playerInfoCommand, identity)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.Query(ctx, command, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("rcon attempt failed",
			slog.String("steam_id", identity),
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.Any("error", err),
		)
		if attempt == attempts || c.cfg.RetryDelay == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("rcon: player info: %w: %v", shared.ErrUnavailable, ctx.Err())
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return "", fmt.Errorf("rcon: player info after %d attempts: %w", attempts, lastErr)
}
