// Package progress streams task lifecycle events to a Socket.IO server so a
// dashboard can follow a crawl as it happens.
package progress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/task"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names emitted by the Publisher.
const (
	EventTaskStarted  = "task:started"
	EventTaskFinished = "task:finished"
)

// ConnectTimeout bounds how long Dial waits for the server to accept the
// connection.
const ConnectTimeout = 15 * time.Second

// ErrConnectTimeout is returned by Dial when the server never answers.
var ErrConnectTimeout = errors.New("timed out waiting for socket.io connection")

// Started is the payload of a task:started event.
type Started struct {
	Key  string    `json:"key"`
	Time time.Time `json:"time"`
}

// Finished is the payload of a task:finished event.
type Finished struct {
	Key       string    `json:"key"`
	OK        bool      `json:"ok"`
	Skipped   bool      `json:"skipped,omitempty"`
	Bytes     int       `json:"bytes"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsedMs"`
	Time      time.Time `json:"time"`
}

// Publisher is a scheduler observer that emits one event per task start and
// finish. Emission never blocks the crawl; delivery is best effort.
type Publisher struct {
	emit       func(event string, payload any)
	disconnect func()
	closeOnce  sync.Once
	now        func() time.Time
}

// Dial connects to the Socket.IO server at rawURL and returns a Publisher
// bound to namespace. The URL path, if any, is used as the Socket.IO path.
func Dial(ctx context.Context, rawURL, namespace string, insecureSkipVerify bool) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("component", "progress", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid events URL %q: scheme and host are required", rawURL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("📡 Progress stream connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Initiating connection.")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(ConnectTimeout):
		io.Disconnect()
		return nil, ErrConnectTimeout
	}

	return newPublisher(
		func(event string, payload any) { io.Emit(event, payload) },
		func() { io.Disconnect() },
	), nil
}

func newPublisher(emit func(event string, payload any), disconnect func()) *Publisher {
	return &Publisher{
		emit:       emit,
		disconnect: disconnect,
		now:        time.Now,
	}
}

// TaskStarted implements scheduler.Observer.
func (p *Publisher) TaskStarted(_ context.Context, key task.Key) {
	p.emit(EventTaskStarted, Started{Key: key.String(), Time: p.now()})
}

// TaskFinished implements scheduler.Observer.
func (p *Publisher) TaskFinished(_ context.Context, key task.Key, res task.Result, elapsed time.Duration) {
	ev := Finished{
		Key:       key.String(),
		OK:        !res.Failed(),
		Skipped:   res.Skipped(),
		Bytes:     len(res.Content),
		ElapsedMS: elapsed.Milliseconds(),
		Time:      p.now(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	p.emit(EventTaskFinished, ev)
}

// Close disconnects from the server. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.closeOnce.Do(p.disconnect)
	return nil
}
