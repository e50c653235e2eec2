package subscriber

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"testing"

	"github.com/nerrad567/statuslogger/internal/infrastructure/mqtt"
	"github.com/nerrad567/statuslogger/internal/sink"
)

const tsPattern = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3}`

func newTestHandler(b *fakeBroker) (*Handler, *outputs) {
	out := &outputs{}
	return &Handler{
		subscriber:  b,
		messageSink: sink.New(&out.messages, sink.Messages()...),
		errorSink:   sink.New(&out.errors, sink.Errors()...),
		console:     &out.console,
		logger:      testLogger(),
		broker:      "localhost:1883",
		topic:       mqtt.Topics{}.AllDeviceStatuses(),
	}, out
}

func assertLine(t *testing.T, got, pattern string) {
	t.Helper()
	if !regexp.MustCompile(`^` + pattern + `$`).MatchString(got) {
		t.Errorf("line = %q, want match for %q", got, pattern)
	}
}

func TestOnConnect_Success(t *testing.T) {
	b := newFakeBroker()
	h, out := newTestHandler(b)

	h.OnConnect(mqtt.CodeSuccess)

	if subs := b.subscriptions(); len(subs) != 1 || subs[0] != "devices/+/status" {
		t.Errorf("subscriptions = %v, want [devices/+/status]", subs)
	}
	want := "Connected to MQTT broker at localhost:1883\nSubscribed to topic: devices/+/status\n"
	if got := out.console.String(); got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
	if out.messages.String() != "" || out.errors.String() != "" {
		t.Errorf("sinks written on connect: messages=%q errors=%q", out.messages.String(), out.errors.String())
	}
}

func TestOnConnect_Refused(t *testing.T) {
	for _, code := range []byte{1, 2, 3, 4, 5} {
		b := newFakeBroker()
		h, out := newTestHandler(b)

		h.OnConnect(code)

		if len(b.subscriptions()) != 0 {
			t.Errorf("code %d: subscribed after refusal", code)
		}
		lines := out.errors.lines()
		if len(lines) != 1 {
			t.Fatalf("code %d: error lines = %v, want 1", code, lines)
		}
		assertLine(t, lines[0], tsPattern+` - ERROR - Failed to connect, return code `+strconv.Itoa(int(code)))
	}
}

func TestOnConnect_SubscribeFailure(t *testing.T) {
	b := newFakeBroker()
	b.subErr = mqtt.ErrNotConnected
	h, out := newTestHandler(b)

	h.OnConnect(mqtt.CodeSuccess)

	lines := out.errors.lines()
	if len(lines) != 1 {
		t.Fatalf("error lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - ERROR - Failed to subscribe to topic devices/\+/status: mqtt: client not connected`)
}

func TestOnMessage_Valid(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())

	h.OnMessage("devices/sensor1/status", []byte("online"))

	lines := out.messages.lines()
	if len(lines) != 1 {
		t.Fatalf("message lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - Received message on topic 'devices/sensor1/status': online`)
	if out.errors.String() != "" {
		t.Errorf("error sink = %q, want empty", out.errors.String())
	}
	if got := out.console.String(); got != "Received message on topic 'devices/sensor1/status': online\n" {
		t.Errorf("console = %q", got)
	}
	if h.MessagesLogged() != 1 || h.ErrorsLogged() != 0 {
		t.Errorf("counters = %d/%d, want 1/0", h.MessagesLogged(), h.ErrorsLogged())
	}
}

func TestOnMessage_EmptyPayload(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())

	h.OnMessage("devices/sensor1/status", nil)

	lines := out.messages.lines()
	if len(lines) != 1 {
		t.Fatalf("message lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - Received message on topic 'devices/sensor1/status': `)
}

func TestOnMessage_InvalidUTF8(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())

	h.OnMessage("devices/sensor1/status", []byte{0xff, 0xfe})

	if out.messages.String() != "" {
		t.Errorf("message sink = %q, want empty", out.messages.String())
	}
	lines := out.errors.lines()
	if len(lines) != 1 {
		t.Fatalf("error lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - ERROR - Error processing message: invalid UTF-8 byte 0xff at position 0`)
	if h.MessagesLogged() != 0 || h.ErrorsLogged() != 1 {
		t.Errorf("counters = %d/%d, want 0/1", h.MessagesLogged(), h.ErrorsLogged())
	}
}

func TestOnMessage_ExactlyOneRecord(t *testing.T) {
	payloads := [][]byte{
		[]byte("online"),
		[]byte("offline"),
		{0xc3},
		[]byte("21.5°C"),
		{},
		{0x80, 'x'},
	}

	h, out := newTestHandler(newFakeBroker())
	for _, p := range payloads {
		h.OnMessage("devices/s/status", p)
	}

	total := len(out.messages.lines()) + len(out.errors.lines())
	if total != len(payloads) {
		t.Errorf("records = %d, want %d", total, len(payloads))
	}
	if h.MessagesLogged() != 4 || h.ErrorsLogged() != 2 {
		t.Errorf("counters = %d/%d, want 4/2", h.MessagesLogged(), h.ErrorsLogged())
	}
}

func TestOnDisconnect(t *testing.T) {
	tests := []struct {
		name      string
		code      byte
		wantLines int
	}{
		{name: "clean", code: mqtt.CodeSuccess, wantLines: 0},
		{name: "unexpected", code: mqtt.CodeUnexpectedDisconnect, wantLines: 1},
		{name: "other nonzero", code: 7, wantLines: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, out := newTestHandler(newFakeBroker())

			h.OnDisconnect(tt.code, errors.New("EOF"))

			lines := out.errors.lines()
			if len(lines) != tt.wantLines {
				t.Fatalf("error lines = %v, want %d", lines, tt.wantLines)
			}
			if tt.wantLines == 1 {
				assertLine(t, lines[0], tsPattern+` - ERROR - Unexpected disconnection from MQTT broker\.`)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())

	h.Fatal(errors.New("connection refused"))

	lines := out.errors.lines()
	if len(lines) != 1 {
		t.Fatalf("error lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - ERROR - Failed to connect or lost connection: connection refused`)
	if got := out.console.String(); got != "Failed to connect or lost connection: connection refused\n" {
		t.Errorf("console = %q", got)
	}
}

func TestOnReconnectFailed(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())

	h.OnReconnectFailed(3, errors.New("dial tcp: connection refused"))

	lines := out.errors.lines()
	if len(lines) != 1 {
		t.Fatalf("error lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], tsPattern+` - ERROR - Reconnect attempt 3 failed: dial tcp: connection refused`)
}

type failingRecorder struct{}

func (failingRecorder) Record(slog.Level, string) error { return errors.New("disk full") }

func TestRecordFailure_NotCounted(t *testing.T) {
	h, out := newTestHandler(newFakeBroker())
	h.messageSink = failingRecorder{}
	h.errorSink = failingRecorder{}

	h.OnMessage("devices/s/status", []byte("online"))
	h.OnMessage("devices/s/status", []byte{0xff})

	if h.MessagesLogged() != 0 || h.ErrorsLogged() != 0 {
		t.Errorf("counters = %d/%d, want 0/0", h.MessagesLogged(), h.ErrorsLogged())
	}
	if len(out.console.lines()) != 2 {
		t.Errorf("console lines = %v, want 2", out.console.lines())
	}
}

func TestDispatch(t *testing.T) {
	b := newFakeBroker()
	h, out := newTestHandler(b)

	h.Dispatch(mqtt.Event{Kind: mqtt.EventConnect, Code: mqtt.CodeSuccess})
	h.Dispatch(mqtt.Event{Kind: mqtt.EventMessage, Topic: "devices/s1/status", Payload: []byte("online")})
	h.Dispatch(mqtt.Event{Kind: mqtt.EventDisconnect, Code: mqtt.CodeUnexpectedDisconnect})
	h.Dispatch(mqtt.Event{Kind: mqtt.EventKind(99)})

	if len(b.subscriptions()) != 1 {
		t.Errorf("subscriptions = %v, want 1", b.subscriptions())
	}
	if len(out.messages.lines()) != 1 || len(out.errors.lines()) != 1 {
		t.Errorf("records = %d/%d, want 1/1", len(out.messages.lines()), len(out.errors.lines()))
	}
}
