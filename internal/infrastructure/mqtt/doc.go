// Package mqtt provides the broker connection used by statuslogger.
//
// This package manages:
//   - A single connection to an MQTT 3.1.1 broker
//   - Topic subscriptions with wildcard support
//   - Translation of protocol activity into typed, ordered Events
//   - Connection health monitoring
//
// # Architecture
//
// Paho runs its network goroutines and calls back into this package. Those
// callbacks do no work of their own: they copy what they received into an
// Event and queue it. One consumer reads Events() and handles them one at a
// time, so nothing downstream needs locking.
//
//	broker ↔ paho goroutines → Events() → run loop → sinks
//
// Reconnection is not automatic. Connect performs a single attempt and
// reports the CONNACK return code; the caller owns the retry policy.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	defer client.Close()
//
//	code, err := client.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	if code == mqtt.CodeSuccess {
//	    err = client.Subscribe(mqtt.Topics{}.AllDeviceStatuses(), 0)
//	}
//	for ev := range client.Events() {
//	    // handle ev
//	}
package mqtt
