package subscriber

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
	"github.com/nerrad567/statuslogger/internal/infrastructure/mqtt"
)

// Broker is the connection the service drives. *mqtt.Client implements it.
type Broker interface {
	Subscriber
	Connect(ctx context.Context) (byte, error)
	Events() <-chan mqtt.Event
	Close() error
}

// Deps holds the dependencies required by the service.
type Deps struct {
	Broker   Broker
	Messages Recorder
	Errors   Recorder
	Console  io.Writer
	Logger   *logging.Logger
	Policy   ReconnectPolicy

	// BrokerAddr is the host:port shown in the connect confirmation.
	BrokerAddr string

	// QoS is the maximum QoS requested for the status subscription.
	QoS byte
}

// Service owns the broker connection and the single goroutine that handles
// its events.
type Service struct {
	broker  Broker
	handler *Handler
	policy  ReconnectPolicy
	logger  *logging.Logger

	retry   *time.Timer
	attempt int
}

// New creates a Service. The subscription topic is always
// mqtt.Topics{}.AllDeviceStatuses().
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Broker == nil:
		return nil, fmt.Errorf("%w: broker", ErrMissingDependency)
	case deps.Messages == nil:
		return nil, fmt.Errorf("%w: message sink", ErrMissingDependency)
	case deps.Errors == nil:
		return nil, fmt.Errorf("%w: error sink", ErrMissingDependency)
	case deps.Console == nil:
		return nil, fmt.Errorf("%w: console", ErrMissingDependency)
	case deps.Logger == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	}

	policy := deps.Policy
	if policy == nil {
		policy = NoReconnect()
	}

	return &Service{
		broker: deps.Broker,
		handler: &Handler{
			subscriber:  deps.Broker,
			messageSink: deps.Messages,
			errorSink:   deps.Errors,
			console:     deps.Console,
			logger:      deps.Logger,
			broker:      deps.BrokerAddr,
			topic:       mqtt.Topics{}.AllDeviceStatuses(),
			qos:         deps.QoS,
		},
		policy: policy,
		logger: deps.Logger.With("component", "subscriber"),
	}, nil
}

// Handler returns the lifecycle handler, for reading its counters.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Run connects and handles events until ctx is cancelled or a fatal error
// occurs.
//
// A failure of the initial connection attempt (anything other than a broker
// refusal) is fatal. So is running out of reconnect attempts. Fatal errors are
// recorded in the error sink before Run returns them. Cancellation is a clean
// shutdown: the broker connection is closed and Run returns nil.
func (s *Service) Run(ctx context.Context) error {
	defer s.stopRetry()

	s.logger.Info("connecting", "broker", s.handler.broker, "reconnect_policy", s.policy.String())

	code, err := s.broker.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.handler.Fatal(err)
		return fmt.Errorf("connecting to broker: %w", err)
	}
	if err := s.afterConnect(code); err != nil {
		return err
	}

	events := s.broker.Events()
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()

		case ev := <-events:
			s.handler.Dispatch(ev)
			if ev.Kind == mqtt.EventDisconnect && ev.Code != mqtt.CodeSuccess {
				if err := s.scheduleRetry(); err != nil {
					return err
				}
			}

		case <-s.retryC():
			s.retry = nil
			s.logger.Info("reconnecting", "attempt", s.attempt)

			code, err := s.broker.Connect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.handler.OnReconnectFailed(s.attempt, err)
				if err := s.scheduleRetry(); err != nil {
					return err
				}
				continue
			}
			if err := s.afterConnect(code); err != nil {
				return err
			}
		}
	}
}

// afterConnect dispatches the connect outcome and resets or advances the
// retry schedule.
func (s *Service) afterConnect(code byte) error {
	s.handler.Dispatch(mqtt.Event{Kind: mqtt.EventConnect, Code: code})
	if code == mqtt.CodeSuccess {
		s.attempt = 0
		return nil
	}
	return s.scheduleRetry()
}

// scheduleRetry arms the retry timer for the next attempt. It returns an
// error only when the policy has run out of attempts.
func (s *Service) scheduleRetry() error {
	if !s.policy.Enabled() {
		s.logger.Info("reconnect disabled, waiting for shutdown")
		return nil
	}

	s.attempt++
	delay, ok := s.policy.NextDelay(s.attempt)
	if !ok {
		err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, s.attempt-1)
		s.handler.Fatal(err)
		return err
	}

	s.logger.Info("reconnect scheduled", "attempt", s.attempt, "delay", delay)
	s.stopRetry()
	s.retry = time.NewTimer(delay)
	return nil
}

// retryC returns the retry timer channel, or nil (blocks forever) when no
// retry is pending.
func (s *Service) retryC() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.C
}

func (s *Service) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// shutdown closes the broker connection and reports the clean disconnect.
func (s *Service) shutdown() error {
	s.logger.Info("shutting down")
	if err := s.broker.Close(); err != nil {
		s.logger.Error("closing broker connection", "error", err)
	}
	s.handler.Dispatch(mqtt.Event{Kind: mqtt.EventDisconnect, Code: mqtt.CodeSuccess})
	return nil
}
