// Package subscriber turns broker events into sink records.
//
// A Service owns one broker connection and handles all of its events on a
// single goroutine:
//
//	Connect ──► OnConnect ──► Subscribe("devices/+/status")
//	Events() ─► OnMessage ──► message sink | error sink
//	        └─► OnDisconnect ─► error sink ─► ReconnectPolicy
//
// Every delivered message produces exactly one record: a message-sink line when
// the payload is valid UTF-8, an error-sink line otherwise. Each record is
// mirrored to the console.
//
// Reconnection is decided by a ReconnectPolicy. ExponentialBackoff, the
// configured default, doubles the delay between attempts up to a ceiling.
// FixedInterval waits the same delay every time. Both take an optional attempt
// limit; running out of attempts ends Run with ErrReconnectExhausted.
// NoReconnect leaves the process running but disconnected after a refusal or a
// lost connection.
//
// Example usage:
//
//	svc, err := subscriber.New(subscriber.Deps{
//	    Broker:     client,
//	    Messages:   messages,
//	    Errors:     errs,
//	    Console:    os.Stdout,
//	    Logger:     logger,
//	    Policy:     subscriber.ExponentialBackoff(time.Second, time.Minute, 0),
//	    BrokerAddr: client.Broker(),
//	})
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
package subscriber
