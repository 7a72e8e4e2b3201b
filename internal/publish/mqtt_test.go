package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/christian-lee/ft8mon/internal/report"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakeClient struct {
	connected bool
	token     *doneToken
	topic     string
	qos       byte
	payload   []byte
	closed    bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.payload = topic, qos, payload.([]byte)
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.closed = true }

func TestWritePublishesSpotJSON(t *testing.T) {
	fc := &fakeClient{connected: true, token: newToken(nil, true)}
	p := newPublisher(fc, Config{Topic: "ft8mon/spots", QoS: 1})

	s := report.Spot{CycleStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Message: "CQ AB1HL FN42", SNR: -10}
	if err := p.Write(context.Background(), s); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fc.topic != "ft8mon/spots" || fc.qos != 1 {
		t.Fatalf("published to %q qos %d", fc.topic, fc.qos)
	}
	var back report.Spot
	if err := json.Unmarshal(fc.payload, &back); err != nil || back.Message != "CQ AB1HL FN42" || back.SNR != -10 {
		t.Fatalf("payload %s (%v)", fc.payload, err)
	}
	p.Close()
	if !fc.closed {
		t.Fatal("Close did not disconnect")
	}
}

func TestWriteErrors(t *testing.T) {
	p := newPublisher(&fakeClient{connected: false}, Config{Topic: "x"})
	if err := p.Write(context.Background(), report.Spot{}); err == nil {
		t.Fatal("expected error while disconnected")
	}

	p = newPublisher(&fakeClient{connected: true, token: newToken(errors.New("not authorized"), true)}, Config{Topic: "x"})
	if err := p.Write(context.Background(), report.Spot{}); err == nil {
		t.Fatal("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = newPublisher(&fakeClient{connected: true, token: newToken(nil, false)}, Config{Topic: "x"})
	if err := p.Write(ctx, report.Spot{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
