package lro

import (
	"time"

	"github.com/zgpcy/azure-lro-poller/internal/clock"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Outcomes reported to Observer.OperationFinished besides the terminal statuses
const (
	OutcomeError     = "Error"
	OutcomeAbandoned = "Abandoned"
)

// Observer receives engine lifecycle events, typically to record metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	// OperationStarted is called when an operation starts being polled in this process
	OperationStarted(kind Kind)
	// PollCompleted is called after every poll GET
	PollCompleted(kind Kind, elapsed time.Duration, err error)
	// OperationFinished is called once per started operation with its terminal
	// status, OutcomeError or OutcomeAbandoned
	OperationFinished(kind Kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) OperationStarted(Kind)                    {}
func (nopObserver) PollCompleted(Kind, time.Duration, error) {}
func (nopObserver) OperationFinished(Kind, string)           {}

// Options configures a Dispatcher. Zero values select the defaults.
type Options struct {
	// DefaultDelay is the inter-poll delay used when a response carries no
	// Retry-After or interval hint (DefaultDelay when zero)
	DefaultDelay time.Duration
	Decoder      Decoder
	Logger       *logger.Logger
	Clock        clock.Clock
	Observer     Observer
}

// Dispatcher sends the initial request of long-running operations and binds
// their polling strategies to a transport. It holds no per-operation state and
// may be shared by any number of concurrent operations.
type Dispatcher struct {
	sender       transport.Sender
	defaultDelay time.Duration
	decoder      Decoder
	logger       *logger.Logger
	clock        clock.Clock
	observer     Observer
}

// NewDispatcher creates a dispatcher over sender
func NewDispatcher(sender transport.Sender, opts Options) *Dispatcher {
	d := &Dispatcher{
		sender:       sender,
		defaultDelay: opts.DefaultDelay,
		decoder:      opts.Decoder,
		logger:       opts.Logger,
		clock:        opts.Clock,
		observer:     opts.Observer,
	}
	if d.defaultDelay <= 0 {
		d.defaultDelay = DefaultDelay
	}
	if d.decoder == nil {
		d.decoder = JSONDecoder{}
	}
	if d.logger == nil {
		d.logger = logger.Discard()
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	return d
}

// DefaultDelay returns the delay used when responses carry no hint
func (d *Dispatcher) DefaultDelay() time.Duration {
	return d.defaultDelay
}
