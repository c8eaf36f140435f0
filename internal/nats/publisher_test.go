package natsclient

import (
	"context"
	"errors"
	"testing"
)

func TestPublish_NotConnected(t *testing.T) {
	p := &Publisher{}
	err := p.Publish(context.Background(), "reports.events", []byte(`{}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	p.Close()
}

func TestNewPublisher_Unreachable(t *testing.T) {
	// Port 1 on loopback refuses connections; the initial connect fails fast.
	if _, err := NewPublisher("nats://127.0.0.1:1", "vinreport-test", nil); err == nil {
		t.Fatal("expected connect error")
	}
}
