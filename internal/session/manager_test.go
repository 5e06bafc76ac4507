package session

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/sshclient"
	"github.com/vivyterm/vivyterm/internal/terminal"
)

func TestBufferOutputDropsAndMarks(t *testing.T) {
	mgr := NewManager(model.AppConfig{})
	hostID := 1

	chunk := bytes.Repeat([]byte("x"), 9*1024)
	for i := 0; i < 2001; i++ {
		mgr.BufferOutput(hostID, chunk)
	}

	chunks := mgr.DrainBuffered(hostID)
	if len(chunks) == 0 {
		t.Fatal("expected buffered chunks")
	}
	if !bytes.Equal(chunks[0], truncatedOutputMsg) {
		t.Fatalf("expected truncated marker first, got %q", string(chunks[0]))
	}
}

func TestBufferOutputCoalescesSmallChunks(t *testing.T) {
	mgr := NewManager(model.AppConfig{})
	hostID := 1

	mgr.BufferOutput(hostID, []byte("hello "))
	mgr.BufferOutput(hostID, []byte("world"))

	chunks := mgr.DrainBuffered(hostID)
	if len(chunks) != 1 {
		t.Fatalf("expected small writes to coalesce into one chunk, got %d", len(chunks))
	}
	if string(chunks[0]) != "hello world" {
		t.Fatalf("unexpected chunk contents: %q", string(chunks[0]))
	}
}

func TestDrainBufferedUpTo(t *testing.T) {
	mgr := NewManager(model.AppConfig{})
	hostID := 1

	big := bytes.Repeat([]byte("a"), 16*1024)
	for i := 0; i < 4; i++ {
		mgr.BufferOutput(hostID, big)
	}

	first, more := mgr.DrainBufferedUpTo(hostID, 16*1024)
	if len(first) != 1 {
		t.Fatalf("expected one chunk within the limit, got %d", len(first))
	}
	if !more {
		t.Fatal("expected more chunks to remain")
	}

	rest, more := mgr.DrainBufferedUpTo(hostID, 0)
	if len(rest) != 3 {
		t.Fatalf("unlimited drain should return the remainder, got %d chunks", len(rest))
	}
	if more {
		t.Fatal("nothing should remain after an unlimited drain")
	}
}

func TestDrainBufferedEmpty(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	if chunks := mgr.DrainBuffered(42); chunks != nil {
		t.Fatalf("expected nil for an unknown host, got %v", chunks)
	}
	if chunks, more := mgr.DrainBufferedUpTo(42, 1024); chunks != nil || more {
		t.Fatalf("expected empty drain, got %v more=%v", chunks, more)
	}
}

func TestSessionStateString(t *testing.T) {
	cases := map[SessionState]string{
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateDisconnected: "disconnected",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: got %q, want %q", state, got, want)
		}
	}
}

func TestSessionInfoUnknownHost(t *testing.T) {
	mgr := NewManager(model.AppConfig{})
	info := mgr.SessionInfo(7)
	if info.State != StateDisconnected {
		t.Fatalf("unknown host should report disconnected, got %v", info.State)
	}
}

func TestReconnectStopsOnHostKeyError(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	dials := 0
	mgr.dialFn = func(ctx context.Context, host model.Host, cols, rows int, pw func(int) (string, error)) (terminal.Session, error) {
		dials++
		return nil, sshclient.ErrUnknownHostKey{HostPort: "h:22", Fingerprint: "SHA256:x"}
	}

	ms := &ManagedSession{
		Host:          model.Host{ID: 1, Name: "h", Driver: model.DriverSSH},
		State:         StateDisconnected,
		AutoReconnect: true,
	}

	mgr.reconnect(ms)

	if dials != 1 {
		t.Fatalf("host-key failure must stop redialing, got %d dials", dials)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.State != StateDisconnected {
		t.Fatalf("expected disconnected, got %v", ms.State)
	}
	if ms.Attempts != 0 {
		t.Fatalf("attempts should reset, got %d", ms.Attempts)
	}
	if ms.Err == nil {
		t.Fatal("the host-key error should be kept for the front end")
	}
}

func TestReconnectSkipsLocalDriver(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	dials := 0
	mgr.dialFn = func(ctx context.Context, host model.Host, cols, rows int, pw func(int) (string, error)) (terminal.Session, error) {
		dials++
		return nil, errors.New("should not be called")
	}

	ms := &ManagedSession{
		Host:          model.Host{ID: 2, Name: "shell", Driver: model.DriverLocal},
		State:         StateDisconnected,
		AutoReconnect: true,
	}

	mgr.reconnect(ms)

	if dials != 0 {
		t.Fatalf("local-driver hosts must never be redialed, got %d dials", dials)
	}
}
