// Package sink provides the append-only record files of statuslogger.
//
// Two sinks are opened at startup and held for the lifetime of the process:
//
//	received_messages.log   2024-05-01 13:45:09,123 - Received message on topic 'devices/s1/status': online
//	errors.log              2024-05-01 13:45:10,007 - ERROR - Unexpected disconnection from MQTT broker.
//
// Sinks are constructed explicitly and passed to their users; nothing is
// registered globally. Tests substitute in-memory sinks with New.
//
// Rendering is done by LineHandler, a log/slog handler, so a sink can also be
// used as the backend of a *slog.Logger.
package sink
