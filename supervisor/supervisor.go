// Package supervisor implements the connection supervisor from §4.6: the
// Initial→Starting→Running→Stopping→Stopped state machine, a configurable
// error policy, a fixed closed policy with its default thresholds, and the
// cleanUp/restart cycle.
//
// The state field follows the same atomic.Value idiom server.Server uses
// for its own stateUninitialized/stateInitializing/stateRunning/
// stateShutdown machine, generalized to the supervisor's six states.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// State is one node of the connection lifecycle state machine.
type State int

const (
	Initial State = iota
	Starting
	StartFailed
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Starting:
		return "starting"
	case StartFailed:
		return "start-failed"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Decision is the outcome of the error or closed handler.
type Decision int

const (
	Continue Decision = iota
	Shutdown
	Restart
	DoNotRestart
)

// StartFunc starts (or restarts) the supervised connection. It blocks until
// the connection ends, then returns the error that ended it (nil on a clean
// shutdown).
type StartFunc func(ctx context.Context) error

// CleanUpFunc disposes listeners and feature providers on restart. It MUST
// preserve any diagnostics collection so markers survive the restart.
type CleanUpFunc func()

// ErrorHandler decides whether an error keeps the connection alive or
// forces a shutdown. count is the number of errors observed so far,
// including this one.
type ErrorHandler func(err error, count int) Decision

// ClosedHandler decides whether a closed connection should be restarted.
// Supervisor does not accept one: closes are always decided by closedDecision.
type ClosedHandler func() Decision

const restartStormWindow = 3 * time.Minute

// DefaultErrorHandler implements §4.6's default: Continue while count <= 3,
// Shutdown afterwards.
func DefaultErrorHandler(err error, count int) Decision {
	if count <= 3 {
		return Continue
	}
	return Shutdown
}

// Supervisor drives one supervised connection through its lifecycle,
// restarting it on close per the fixed default policy in closedDecision; the
// closed policy is not configurable.
type Supervisor struct {
	start   StartFunc
	cleanUp CleanUpFunc
	onError ErrorHandler
	logger  *log.Logger

	state     atomic.Value // stores State
	errCount  int64
	mu        sync.Mutex
	closeLog  []time.Time // timestamps of closes, oldest first
	onUserMsg func(string)
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithErrorHandler overrides the default error-count policy.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Supervisor) { s.onError = h }
}

// WithLogger sets the logger used for restart/shutdown diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithUserMessage sets the callback invoked with a single user-visible
// message when a restart storm forces DoNotRestart.
func WithUserMessage(f func(string)) Option {
	return func(s *Supervisor) { s.onUserMsg = f }
}

// New creates a Supervisor in state Initial.
func New(start StartFunc, cleanUp CleanUpFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		start:   start,
		cleanUp: cleanUp,
		onError: DefaultErrorHandler,
		logger:  log.Default(),
	}
	s.state.Store(Initial)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentState returns the supervisor's current lifecycle state.
func (s *Supervisor) CurrentState() State {
	st, _ := s.state.Load().(State)
	return st
}

// Run drives the supervised connection until it shuts down for good: it
// transitions Initial→Starting, runs start, and on a closed connection
// consults the closed-handler default policy to decide whether to clean up
// and restart (Stopped→Initial) or stop permanently.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if !s.state.CompareAndSwap(Initial, Starting) {
			return fmt.Errorf("supervisor: Run called from state %s, expected Initial", s.CurrentState())
		}

		err := s.start(ctx)

		if err != nil {
			count := atomic.AddInt64(&s.errCount, 1)
			if s.onError(err, int(count)) == Shutdown {
				s.state.CompareAndSwap(Starting, StartFailed)
				s.state.CompareAndSwap(Running, StartFailed)
				return err
			}
		}

		s.state.CompareAndSwap(Starting, Stopping)
		s.state.CompareAndSwap(Running, Stopping)
		s.state.Store(Stopped)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.closedDecision() == DoNotRestart {
			return err
		}

		s.cleanUp()
		s.state.Store(Initial)
	}
}

// MarkRunning transitions Starting→Running. The started connection calls
// this once its own handshake (e.g. initialize/initialized) completes.
func (s *Supervisor) MarkRunning() bool {
	return s.state.CompareAndSwap(Starting, Running)
}

// closedDecision implements §4.6's default closed() policy: Restart for the
// first 4 closes; if a 5th happens within 3 minutes of the first,
// DoNotRestart and surface a user-visible failure; otherwise forget the
// oldest timestamp and Restart.
func (s *Supervisor) closedDecision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.closeLog = append(s.closeLog, now)

	if len(s.closeLog) <= 4 {
		return Restart
	}

	oldest := s.closeLog[0]
	if now.Sub(oldest) <= restartStormWindow {
		if s.onUserMsg != nil {
			s.onUserMsg("connection closed repeatedly; giving up on restarting")
		}
		return DoNotRestart
	}

	s.closeLog = s.closeLog[1:]
	return Restart
}
