package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"avenor/src/bus"
	"avenor/src/supervisor"
)

// Receiver performs the bounded wait for the next bus message.
type Receiver interface {
	Receive(ctx context.Context, timeout time.Duration) (*bus.Envelope, error)
}

// Service watches the heartbeat topic namespace and alerts when a tracked
// service goes silent past the staleness threshold.
type Service struct {
	sub      Receiver
	notifier supervisor.Notifier
	log      *logger.Entry

	lastSeen       map[string]time.Time
	staleThreshold time.Duration
	pollTimeout    time.Duration

	now     func() time.Time
	onStale func(service string, silence time.Duration)
}

// New wires the health monitor. The liveness table is seeded with the
// current time so freshly started services get a full threshold of grace.
func New(config Config, sub Receiver, pollTimeout time.Duration, log *logger.Entry) *Service {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	s := &Service{
		sub:            sub,
		notifier:       supervisor.Noop{},
		log:            log,
		lastSeen:       make(map[string]time.Time),
		staleThreshold: config.StaleThreshold,
		pollTimeout:    pollTimeout,
		now:            time.Now,
	}
	s.onStale = s.logStaleAlert

	seed := s.now()
	for _, name := range config.Services {
		s.lastSeen[name] = seed
	}

	return s
}

func (s *Service) logStaleAlert(service string, silence time.Duration) {
	s.log.WithFields(map[string]interface{}{
		"alert":   true,
		"service": service,
		"silence": silence.String(),
	}).Error("ALERT: no heartbeat from service past staleness threshold")
}

// Run consumes heartbeats and sweeps for stale services until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.notifier.Ready()

	for {
		s.notifier.Watchdog()

		env, err := s.sub.Receive(ctx, s.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Info("Health monitor stopping")
				return nil
			}
			s.log.WithError(err).Error("Bus receive failed")
			return err
		}

		if env != nil {
			s.handleHeartbeat(env.Payload)
		}

		s.checkStale()
	}
}

// handleHeartbeat refreshes the last-seen time of a recognized service.
// Heartbeats from services the monitor was not configured to track are
// logged and discarded.
func (s *Service) handleHeartbeat(payload []byte) {
	var hb struct {
		Service string `json:"service"`
	}
	if err := json.Unmarshal(payload, &hb); err != nil {
		s.log.WithError(err).Warn("Discarding malformed heartbeat")
		return
	}

	if _, ok := s.lastSeen[hb.Service]; !ok {
		s.log.WithField("service", hb.Service).Warn("Received heartbeat from unknown service")
		return
	}

	s.lastSeen[hb.Service] = s.now()
	s.log.WithField("service", hb.Service).Info("Received heartbeat")
}

// checkStale alerts for every service silent past the threshold. The
// last-seen time is reset to now after alerting so one silent period raises
// one alert per threshold window instead of one per poll cycle.
func (s *Service) checkStale() {
	current := s.now()
	for name, seen := range s.lastSeen {
		silence := current.Sub(seen)
		if silence > s.staleThreshold {
			s.onStale(name, silence)
			s.lastSeen[name] = current
		}
	}
}
