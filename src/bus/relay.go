package bus

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	relayWriteTimeout = 5 * time.Second
	subscriberBacklog = 256
	shutdownGrace     = 2 * time.Second
)

// Relay is the rendezvous point of the fleet. Publishers connect to the
// inbound endpoint, subscribers to the outbound endpoint, and every data
// frame received inbound is rebroadcast verbatim to each subscriber whose
// filter prefix-matches the topic. Subscription frames travel the other way
// so publishers can see the active filter set.
//
// The relay holds no message state: a message published while a subscriber is
// disconnected, or while its send queue is full, is dropped.
type Relay struct {
	log *logger.Entry

	mu          sync.Mutex
	publishers  map[*relayPublisher]struct{}
	subscribers map[*relaySubscriber]struct{}

	inboundSrv  *http.Server
	outboundSrv *http.Server
	inboundLn   net.Listener
	outboundLn  net.Listener

	fatal chan error
}

type relayPublisher struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type relaySubscriber struct {
	conn    *websocket.Conn
	filters map[string]struct{}
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *relaySubscriber) matches(topic string) bool {
	for filter := range s.filters {
		if strings.HasPrefix(topic, filter) {
			return true
		}
	}
	return false
}

func (s *relaySubscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// NewRelay creates a relay that will bind to the configured addresses once
// Start is called.
func NewRelay(config RelayConfig, log *logger.Entry) *Relay {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	r := &Relay{
		log:         log,
		publishers:  make(map[*relayPublisher]struct{}),
		subscribers: make(map[*relaySubscriber]struct{}),
		fatal:       make(chan error, 2),
	}

	inbound := chi.NewRouter()
	inbound.Get("/publish", r.handlePublish)
	inbound.Get("/healthz", handleHealthz)

	outbound := chi.NewRouter()
	outbound.Get("/subscribe", r.handleSubscribe)
	outbound.Get("/healthz", handleHealthz)

	r.inboundSrv = &http.Server{Addr: config.InboundAddr, Handler: inbound}
	r.outboundSrv = &http.Server{Addr: config.OutboundAddr, Handler: outbound}

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start binds both listeners and begins serving. It returns once the relay
// is accepting connections; use Run to block until shutdown.
func (r *Relay) Start() error {
	inboundLn, err := net.Listen("tcp", r.inboundSrv.Addr)
	if err != nil {
		r.log.WithError(err).Error("Failed to bind relay inbound listener")
		return err
	}

	outboundLn, err := net.Listen("tcp", r.outboundSrv.Addr)
	if err != nil {
		_ = inboundLn.Close()
		r.log.WithError(err).Error("Failed to bind relay outbound listener")
		return err
	}

	r.inboundLn = inboundLn
	r.outboundLn = outboundLn

	r.log.WithFields(map[string]interface{}{
		"inbound":  inboundLn.Addr().String(),
		"outbound": outboundLn.Addr().String(),
	}).Info("Relay listening")

	go r.serve(r.inboundSrv, inboundLn)
	go r.serve(r.outboundSrv, outboundLn)

	return nil
}

func (r *Relay) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		// The relay has no state to recover: a dead listener ends the process.
		r.log.WithError(err).Error("Relay listener failed")
		select {
		case r.fatal <- err:
		default:
		}
	}
}

// InboundAddr reports the bound publish-facing address.
func (r *Relay) InboundAddr() string {
	return r.inboundLn.Addr().String()
}

// OutboundAddr reports the bound subscribe-facing address.
func (r *Relay) OutboundAddr() string {
	return r.outboundLn.Addr().String()
}

// Run blocks until the context is cancelled or a listener fails. A listener
// failure is returned to the caller; cancellation is a clean exit.
func (r *Relay) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		r.log.Info("Relay shutting down")
		r.Close()
		return nil
	case err := <-r.fatal:
		r.Close()
		return err
	}
}

// Close tears down both servers and every peer connection.
func (r *Relay) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	_ = r.inboundSrv.Shutdown(shutdownCtx)
	_ = r.outboundSrv.Shutdown(shutdownCtx)

	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.publishers {
		_ = p.conn.Close()
	}
	for s := range r.subscribers {
		s.stop()
	}
}

var relayUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (r *Relay) handlePublish(w http.ResponseWriter, req *http.Request) {
	conn, err := relayUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("Failed to upgrade publisher connection")
		return
	}

	pub := &relayPublisher{conn: conn}

	r.mu.Lock()
	r.publishers[pub] = struct{}{}
	r.mu.Unlock()

	r.log.WithField("remote", conn.RemoteAddr().String()).Info("Publisher connected")

	defer func() {
		r.mu.Lock()
		delete(r.publishers, pub)
		r.mu.Unlock()
		_ = conn.Close()
		r.log.WithField("remote", conn.RemoteAddr().String()).Info("Publisher disconnected")
	}()

	// Frames from a single publisher are read and broadcast sequentially,
	// which preserves per-publisher ordering end to end.
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if len(frame) == 0 || frame[0] != frameData {
			continue
		}
		env, err := decodeData(frame)
		if err != nil {
			r.log.WithError(err).Warn("Dropping malformed data frame")
			continue
		}
		r.broadcast(env.Topic, frame)
	}
}

func (r *Relay) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	conn, err := relayUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("Failed to upgrade subscriber connection")
		return
	}

	sub := &relaySubscriber{
		conn:    conn,
		filters: make(map[string]struct{}),
		send:    make(chan []byte, subscriberBacklog),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	r.mu.Unlock()

	r.log.WithField("remote", conn.RemoteAddr().String()).Info("Subscriber connected")

	go r.writeLoop(sub)

	defer func() {
		r.mu.Lock()
		delete(r.subscribers, sub)
		r.mu.Unlock()
		sub.stop()
		r.log.WithField("remote", conn.RemoteAddr().String()).Info("Subscriber disconnected")
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case frameSubscribe:
			filter := string(frame[1:])
			r.mu.Lock()
			sub.filters[filter] = struct{}{}
			r.mu.Unlock()
			r.log.WithField("filter", filter).Debug("Subscription added")
			r.forwardSubscription(frame)
		case frameUnsubscribe:
			filter := string(frame[1:])
			r.mu.Lock()
			delete(sub.filters, filter)
			r.mu.Unlock()
			r.log.WithField("filter", filter).Debug("Subscription removed")
			r.forwardSubscription(frame)
		default:
			// Subscribers have no business sending data frames.
			r.log.Warn("Ignoring unexpected frame from subscriber")
		}
	}
}

func (r *Relay) writeLoop(sub *relaySubscriber) {
	for {
		select {
		case <-sub.done:
			return
		case frame := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
			if err := sub.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				sub.stop()
				return
			}
		}
	}
}

// broadcast fans a data frame out to every matching subscriber. A subscriber
// that cannot keep up has the frame dropped rather than buffered.
func (r *Relay) broadcast(topic string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subscribers {
		if !sub.matches(topic) {
			continue
		}
		select {
		case sub.send <- frame:
		default:
			r.log.WithField("topic", topic).Warn("Subscriber backlog full, dropping message")
		}
	}
}

// forwardSubscription relays a filter add/remove frame to every publisher.
// Publishers may use it to skip unwanted topics; delivery is best effort and
// not required for correctness.
func (r *Relay) forwardSubscription(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pub := range r.publishers {
		pub.writeMu.Lock()
		_ = pub.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
		_ = pub.conn.WriteMessage(websocket.BinaryMessage, frame)
		pub.writeMu.Unlock()
	}
}
