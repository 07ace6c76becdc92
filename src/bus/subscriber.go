package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// ErrSubscriberClosed is returned by Receive once the underlying connection
// is gone and the inbox has been drained.
var ErrSubscriberClosed = errors.New("bus: subscriber closed")

// Subscriber is a client of the relay's outbound endpoint. A background
// reader feeds decoded envelopes into a bounded inbox; Receive performs the
// bounded wait every service loop is built around.
type Subscriber struct {
	conn *websocket.Conn
	log  *logger.Entry

	writeMu sync.Mutex
	inbox   chan Envelope
	closed  chan struct{}
	once    sync.Once

	errMu   sync.Mutex
	readErr error
}

// DialSubscriber connects to the relay's subscribe-facing endpoint and
// registers the given topic filters.
func DialSubscriber(ctx context.Context, url string, log *logger.Entry, filters ...string) (*Subscriber, error) {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.WithError(err).WithField("url", url).Error("Failed to connect subscriber to message bus")
		return nil, fmt.Errorf("dial subscriber %s: %w", url, err)
	}

	log.WithField("url", url).Info("Subscriber connected to message bus")

	s := &Subscriber{
		conn:   conn,
		log:    log,
		inbox:  make(chan Envelope, subscriberBacklog),
		closed: make(chan struct{}),
	}

	for _, filter := range filters {
		if err := s.Subscribe(filter); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	go s.readLoop()

	return s, nil
}

// Subscribe registers a topic prefix filter with the relay.
func (s *Subscriber) Subscribe(filter string) error {
	s.log.WithField("filter", filter).Info("Subscribing to topic filter")
	return s.sendControl(encodeSubscription(true, filter))
}

// Unsubscribe removes a previously registered filter.
func (s *Subscriber) Unsubscribe(filter string) error {
	s.log.WithField("filter", filter).Info("Unsubscribing from topic filter")
	return s.sendControl(encodeSubscription(false, filter))
}

func (s *Subscriber) sendControl(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("send subscription frame: %w", err)
	}
	return nil
}

func (s *Subscriber) readLoop() {
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.errMu.Lock()
			s.readErr = err
			s.errMu.Unlock()
			close(s.inbox)
			return
		}
		env, err := decodeData(frame)
		if err != nil {
			s.log.WithError(err).Warn("Dropping malformed frame from bus")
			continue
		}
		select {
		case s.inbox <- env:
		case <-s.closed:
			return
		}
	}
}

// Receive waits up to timeout for the next matching message. It returns
// (nil, nil) when the wait times out, the context error when cancelled, and
// a transport error once the connection is gone. The bounded wait is what
// keeps every service's housekeeping latency at the poll timeout.
func (s *Subscriber) Receive(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case env, ok := <-s.inbox:
		if !ok {
			s.errMu.Lock()
			err := s.readErr
			s.errMu.Unlock()
			if err == nil {
				err = ErrSubscriberClosed
			}
			return nil, fmt.Errorf("bus receive: %w", err)
		}
		return &env, nil
	case <-timer.C:
		return nil, nil
	}
}

// Close releases the bus connection.
func (s *Subscriber) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.conn.Close()
}
