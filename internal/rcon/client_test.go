package rcon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

type fakeConn struct {
	reply  string
	err    error
	delay  time.Duration
	closed *atomic.Int32
	sent   *[]string
}

func (c fakeConn) Execute(command string) (string, error) {
	if c.sent != nil {
		*c.sent = append(*c.sent, command)
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.reply, c.err
}

func (c fakeConn) Close() error {
	if c.closed != nil {
		c.closed.Add(1)
	}
	return nil
}

func TestQueryOpensAndClosesConnection(t *testing.T) {
	var closed atomic.Int32
	var sent []string
	var dials int
	var gotAddr, gotPassword string
	var gotTimeout time.Duration
	client := NewClient(Config{Addr: "127.0.0.1:28016", Password: "pw"}, func(_ context.Context, addr, password string, timeout time.Duration) (Conn, error) {
		dials++
		gotAddr, gotPassword, gotTimeout = addr, password, timeout
		return fakeConn{reply: "ok", closed: &closed, sent: &sent}, nil
	}, nil)

	resp, err := client.Query(context.Background(), "status", 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Equal(t, 1, dials)
	require.Equal(t, "127.0.0.1:28016", gotAddr)
	require.Equal(t, "pw", gotPassword)
	require.Equal(t, 3*time.Second, gotTimeout)
	require.Equal(t, int32(1), closed.Load())
	require.Equal(t, []string{"status"}, sent)
}

func TestQueryDialFailureIsUnavailable(t *testing.T) {
	client := NewClient(Config{}, func(context.Context, string, string, time.Duration) (Conn, error) {
		return nil, errors.New("authentication failed")
	}, nil)

	_, err := client.Query(context.Background(), "status", time.Second)
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestQueryTimeout(t *testing.T) {
	client := NewClient(Config{}, func(context.Context, string, string, time.Duration) (Conn, error) {
		return fakeConn{reply: "late", delay: 200 * time.Millisecond}, nil
	}, nil)

	start := time.Now()
	_, err := client.Query(context.Background(), "status", 20*time.Millisecond)
	require.ErrorIs(t, err, shared.ErrUnavailable)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestPlayerInfoRetriesUntilSuccess(t *testing.T) {
	var calls int
	var sent []string
	client := NewClient(Config{RetryDelay: time.Millisecond}, func(context.Context, string, string, time.Duration) (Conn, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return fakeConn{reply: "Group: admin", sent: &sent}, nil
	}, nil)

	resp, err := client.PlayerInfo(context.Background(), "76561198012345678", time.Second, 3)
	require.NoError(t, err)
	require.Equal(t, "Group: admin", resp)
	require.Equal(t, 3, calls)
	require.Equal(t, []string{"pinfo 76561198012345678"}, sent)
}

func TestPlayerInfoShortCircuits(t *testing.T) {
	var calls int
	client := NewClient(Config{}, func(context.Context, string, string, time.Duration) (Conn, error) {
		calls++
		return fakeConn{reply: "No privileges"}, nil
	}, nil)

	_, err := client.PlayerInfo(context.Background(), "STEAM_0:1:1", time.Second, 5)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestPlayerInfoExhaustsAttempts(t *testing.T) {
	var calls int
	client := NewClient(Config{}, func(context.Context, string, string, time.Duration) (Conn, error) {
		calls++
		return fakeConn{err: errors.New("broken pipe")}, nil
	}, nil)

	_, err := client.PlayerInfo(context.Background(), "STEAM_0:1:1", time.Second, 3)
	require.ErrorIs(t, err, shared.ErrUnavailable)
	require.Equal(t, 3, calls)
}
