package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const clientWriteTimeout = 5 * time.Second

// Publisher is a fire-and-forget client of the relay's inbound endpoint.
// Publishing never waits for delivery; once the frame is handed to the
// transport the sender moves on.
type Publisher struct {
	conn *websocket.Conn
	log  *logger.Entry

	writeMu sync.Mutex
}

// DialPublisher connects to the relay's publish-facing endpoint.
func DialPublisher(ctx context.Context, url string, log *logger.Entry) (*Publisher, error) {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.WithError(err).WithField("url", url).Error("Failed to connect publisher to message bus")
		return nil, fmt.Errorf("dial publisher %s: %w", url, err)
	}

	log.WithField("url", url).Info("Publisher connected to message bus")

	p := &Publisher{conn: conn, log: log}

	// The relay forwards subscription frames to publishers as a routing
	// optimization. This publisher does not filter on them, so the reader
	// only drains the connection.
	go p.drain()

	return p, nil
}

func (p *Publisher) drain() {
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish marshals v as JSON and sends it tagged with topic.
func (p *Publisher) Publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return p.PublishRaw(topic, payload)
}

// PublishRaw sends an already-encoded payload tagged with topic.
func (p *Publisher) PublishRaw(topic string, payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, encodeData(topic, payload)); err != nil {
		return fmt.Errorf("publish on %s: %w", topic, err)
	}
	return nil
}

// Close releases the bus connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
