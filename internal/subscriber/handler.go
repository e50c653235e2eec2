package subscriber

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
	"github.com/nerrad567/statuslogger/internal/infrastructure/mqtt"
)

// Recorder is an append-only record destination. *sink.Sink implements it.
type Recorder interface {
	Record(level slog.Level, msg string) error
}

// Subscriber requests a topic subscription from the broker.
type Subscriber interface {
	Subscribe(topic string, qos byte) error
}

// Handler reacts to connection lifecycle events.
//
// Every line it records is also written to the console. Handler methods are
// called from a single goroutine; the counters are atomic only so that the
// health endpoint can read them.
type Handler struct {
	subscriber  Subscriber
	messageSink Recorder
	errorSink   Recorder
	console     io.Writer
	logger      *logging.Logger

	broker string
	topic  string
	qos    byte

	messagesLogged atomic.Uint64
	errorsLogged   atomic.Uint64
}

// Dispatch routes ev to the matching lifecycle method.
func (h *Handler) Dispatch(ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.EventConnect:
		h.OnConnect(ev.Code)
	case mqtt.EventMessage:
		h.OnMessage(ev.Topic, ev.Payload)
	case mqtt.EventDisconnect:
		h.OnDisconnect(ev.Code, ev.Err)
	default:
		h.logger.Warn("ignoring unknown event", "kind", ev.Kind.String())
	}
}

// OnConnect subscribes to the status topic when code reports success and
// records a failure otherwise. It never retries.
func (h *Handler) OnConnect(code byte) {
	if code != mqtt.CodeSuccess {
		h.recordError(fmt.Sprintf("Failed to connect, return code %d", code))
		return
	}

	h.emit(fmt.Sprintf("Connected to MQTT broker at %s", h.broker))

	if err := h.subscriber.Subscribe(h.topic, h.qos); err != nil {
		h.recordError(fmt.Sprintf("Failed to subscribe to topic %s: %v", h.topic, err))
		return
	}
	h.emit(fmt.Sprintf("Subscribed to topic: %s", h.topic))
}

// OnMessage records one delivered message. A payload that is valid UTF-8
// produces exactly one message record; anything else produces exactly one
// error record.
func (h *Handler) OnMessage(topic string, payload []byte) {
	text, err := decodeUTF8(payload)
	if err != nil {
		h.recordError(fmt.Sprintf("Error processing message: %v", err))
		return
	}

	line := fmt.Sprintf("Received message on topic '%s': %s", topic, text)
	h.emit(line)
	if err := h.messageSink.Record(slog.LevelInfo, line); err != nil {
		h.logger.Error("writing message record failed", "topic", topic, "error", err)
		return
	}
	h.messagesLogged.Add(1)
}

// OnDisconnect records an unexpected disconnection. A clean disconnect
// (code 0) records nothing.
func (h *Handler) OnDisconnect(code byte, cause error) {
	if code == mqtt.CodeSuccess {
		return
	}
	h.logger.Warn("broker connection lost", "code", code, "error", cause)
	h.recordError("Unexpected disconnection from MQTT broker.")
}

// OnReconnectFailed records a reconnect attempt that could not reach the broker.
func (h *Handler) OnReconnectFailed(attempt int, err error) {
	h.recordError(fmt.Sprintf("Reconnect attempt %d failed: %v", attempt, err))
}

// Fatal records an error that ends the process.
func (h *Handler) Fatal(err error) {
	h.recordError(fmt.Sprintf("Failed to connect or lost connection: %v", err))
}

// MessagesLogged returns the number of message records written.
func (h *Handler) MessagesLogged() uint64 {
	return h.messagesLogged.Load()
}

// ErrorsLogged returns the number of error records written.
func (h *Handler) ErrorsLogged() uint64 {
	return h.errorsLogged.Load()
}

// emit mirrors a line to the console.
func (h *Handler) emit(line string) {
	//nolint:errcheck // Console output is best-effort
	fmt.Fprintln(h.console, line)
}

// recordError mirrors msg to the console and appends it to the error sink.
func (h *Handler) recordError(msg string) {
	h.emit(msg)
	if err := h.errorSink.Record(slog.LevelError, msg); err != nil {
		h.logger.Error("writing error record failed", "record", msg, "error", err)
		return
	}
	h.errorsLogged.Add(1)
}
