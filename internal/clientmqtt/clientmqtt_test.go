package clientmqtt

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"webdmx/internal/logger"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func TestWait(t *testing.T) {
	boom := errors.New("boom")
	done := &fakeToken{done: make(chan struct{}), err: boom}
	close(done.done)
	if err := wait(context.Background(), done, time.Second); !errors.Is(err, boom) {
		t.Errorf("wait() error = %v, want boom", err)
	}

	pending := &fakeToken{done: make(chan struct{})}
	if err := wait(context.Background(), pending, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("wait() error = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := wait(ctx, pending, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("wait() error = %v, want context.Canceled", err)
	}
}

func newTestClient(port string) *ClientMQTT {
	l, _ := test.NewNullLogger()
	return NewClient(logger.Wrap(l), MQTTConf{
		ClientID: "webdmx-test",
		Host:     "127.0.0.1",
		Port:     port,
		Timeout:  time.Second,
	})
}

func TestSubscribeNotConnected(t *testing.T) {
	c := newTestClient("1883")
	err := c.Subscribe(context.Background(), "fader", func([]byte) {})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	c := newTestClient(port)
	if err := c.Connect(context.Background()); err == nil {
		c.Close()
		t.Fatal("Connect() expected error when no broker listens")
	}
}
