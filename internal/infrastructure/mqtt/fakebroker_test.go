package mqtt

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// fakeBroker is a minimal in-process MQTT 3.1.1 server for unit tests.
// It answers CONNECT with a fixed return code, acknowledges SUBSCRIBE and
// UNSUBSCRIBE, answers PINGREQ, and lets the test publish to or drop the
// current connection.
type fakeBroker struct {
	t          *testing.T
	ln         net.Listener
	returnCode byte

	mu   sync.Mutex
	conn net.Conn

	connected  chan struct{}
	subscribed chan string
}

func startFakeBroker(t *testing.T, returnCode byte) *fakeBroker {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	b := &fakeBroker{
		t:          t,
		ln:         ln,
		returnCode: returnCode,
		connected:  make(chan struct{}, 8),
		subscribed: make(chan string, 8),
	}
	t.Cleanup(func() {
		ln.Close()
		b.drop()
	})

	go b.serve()
	return b
}

func (b *fakeBroker) port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

func (b *fakeBroker) addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(b.port()))
}

func (b *fakeBroker) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.handle(conn)
	}
}

func (b *fakeBroker) handle(conn net.Conn) {
	cp, err := packets.ReadPacket(conn)
	if err != nil {
		conn.Close()
		return
	}
	if _, ok := cp.(*packets.ConnectPacket); !ok {
		conn.Close()
		return
	}

	ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ack.ReturnCode = b.returnCode
	if b.write(conn, ack) != nil || b.returnCode != packets.Accepted {
		conn.Close()
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.connected <- struct{}{}

	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			conn.Close()
			return
		}

		switch p := cp.(type) {
		case *packets.SubscribePacket:
			sa := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			sa.MessageID = p.MessageID
			sa.ReturnCodes = p.Qoss
			if b.write(conn, sa) != nil {
				return
			}
			for _, topic := range p.Topics {
				b.subscribed <- topic
			}
		case *packets.UnsubscribePacket:
			ua := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
			ua.MessageID = p.MessageID
			if b.write(conn, ua) != nil {
				return
			}
		case *packets.PingreqPacket:
			if b.write(conn, packets.NewControlPacket(packets.Pingresp)) != nil {
				return
			}
		case *packets.DisconnectPacket:
			conn.Close()
			return
		}
	}
}

func (b *fakeBroker) write(conn net.Conn, cp packets.ControlPacket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cp.Write(conn)
}

// publish sends a QoS 0 PUBLISH on the current connection.
func (b *fakeBroker) publish(topic string, payload []byte) {
	b.t.Helper()

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.t.Fatal("fakeBroker.publish: no client connected")
	}

	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.TopicName = topic
	p.Payload = payload
	if err := b.write(conn, p); err != nil {
		b.t.Fatalf("fakeBroker.publish: %v", err)
	}
}

// drop closes the current connection without a DISCONNECT.
func (b *fakeBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
