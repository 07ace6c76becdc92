package heartbeat

import (
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"avenor/src/model"
)

// Publisher is the slice of the bus client the emitter needs.
type Publisher interface {
	Publish(topic string, v interface{}) error
}

// Emitter publishes a service's liveness heartbeat on a fixed period. Every
// service loop calls EmitIfDue once per iteration; the emitter decides
// whether enough time has passed.
type Emitter struct {
	service  string
	topic    string
	interval time.Duration
	pub      Publisher
	log      *logger.Entry
	pid      int

	last time.Time
	now  func() time.Time
}

// NewEmitter creates an emitter for the given service name. The first call
// to EmitIfDue publishes immediately.
func NewEmitter(service string, interval time.Duration, pub Publisher, log *logger.Entry) *Emitter {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	return &Emitter{
		service:  service,
		topic:    model.HeartbeatTopic(service),
		interval: interval,
		pub:      pub,
		log:      log,
		pid:      os.Getpid(),
		now:      time.Now,
	}
}

// EmitIfDue publishes a heartbeat when the interval has elapsed since the
// last one. Publish failures are returned so the owning loop can treat them
// as the transport errors they are.
func (e *Emitter) EmitIfDue() error {
	current := e.now()
	if current.Sub(e.last) <= e.interval {
		return nil
	}

	e.log.Debug("Sending heartbeat")
	payload := model.Heartbeat{
		Service:      e.service,
		TimestampUTC: model.UnixSeconds(current),
		PID:          e.pid,
	}
	if err := e.pub.Publish(e.topic, payload); err != nil {
		return err
	}

	e.last = current
	return nil
}
