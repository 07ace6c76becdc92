package supervisor

// Notifier is the process-supervisor liveness protocol seen from the inside:
// Ready once startup completes, Watchdog on every loop iteration. The real
// implementation lives at the deployment boundary; services only require
// that calls do not block materially.
type Notifier interface {
	Ready()
	Watchdog()
}

// Noop satisfies Notifier for processes running without a supervisor.
type Noop struct{}

func (Noop) Ready()    {}
func (Noop) Watchdog() {}
