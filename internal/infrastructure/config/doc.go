// Package config handles loading and validating statuslogger configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Reading a local dotenv settings file (config.env)
//   - Overriding with environment variables
//   - Validation of required fields
//
// Only the broker host, port and client ID are read from the environment
// under their historical names (MQTT_BROKER_HOST, MQTT_BROKER_PORT,
// MQTT_CLIENT_ID). A port that is not an integer stops startup.
//
// Usage:
//
//	cfg, err := config.Load("", "config.env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
