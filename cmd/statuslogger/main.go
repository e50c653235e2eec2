// statuslogger records device status messages from an MQTT broker.
//
// It subscribes to devices/+/status and appends every message it receives to
// received_messages.log. Connection problems and undecodable payloads go to
// errors.log. Both files, and the console, get one line per event.
//
// Configuration comes from an optional YAML file (STATUSLOGGER_CONFIG), an
// optional dotenv file (STATUSLOGGER_ENV_FILE, default config.env) and the
// environment (MQTT_BROKER_HOST, MQTT_BROKER_PORT, MQTT_CLIENT_ID).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/nerrad567/statuslogger/internal/api"
	"github.com/nerrad567/statuslogger/internal/infrastructure/config"
	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
	"github.com/nerrad567/statuslogger/internal/infrastructure/mqtt"
	"github.com/nerrad567/statuslogger/internal/sink"
	"github.com/nerrad567/statuslogger/internal/subscriber"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Environment variables read before configuration is loaded.
const (
	envConfigPath = "STATUSLOGGER_CONFIG"
	envEnvFile    = "STATUSLOGGER_ENV_FILE"
)

// defaultEnvFile is the local settings file read when STATUSLOGGER_ENV_FILE is unset.
const defaultEnvFile = "config.env"

func main() {
	// Cancel on Ctrl+C or SIGTERM for a clean disconnect
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Console lines are written to stdout. It returns nil on signal shutdown.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("statuslogger", flag.ContinueOnError)
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "statuslogger %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting statuslogger",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath, getEnvFilePath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	runID := uuid.NewString()
	log = logging.New(cfg.Logging, version).With("run_id", runID)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open sinks before connecting so that connect failures are recorded
	messages, err := sink.Open(cfg.Sinks.MessagesPath, sink.Messages()...)
	if err != nil {
		return fmt.Errorf("opening message log: %w", err)
	}
	defer closeSink(log, messages)

	errs, err := sink.Open(cfg.Sinks.ErrorsPath, sink.Errors()...)
	if err != nil {
		return fmt.Errorf("opening error log: %w", err)
	}
	defer closeSink(log, errs)

	policy, err := subscriber.NewReconnectPolicy(cfg.MQTT.Reconnect)
	if err != nil {
		return fmt.Errorf("building reconnect policy: %w", err)
	}

	client := mqtt.New(cfg.MQTT)
	client.SetLogger(log.With("component", "mqtt"))
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	var messageRec, errorRec subscriber.Recorder = messages, errs
	var hub *api.Hub
	if cfg.Health.Enabled {
		hub = api.NewHub(log)
		messageRec = hub.Tee(api.ChannelMessages, messages)
		errorRec = hub.Tee(api.ChannelErrors, errs)
	}

	svc, err := subscriber.New(subscriber.Deps{
		Broker:     client,
		Messages:   messageRec,
		Errors:     errorRec,
		Console:    stdout,
		Logger:     log,
		Policy:     policy,
		BrokerAddr: client.Broker(),
		QoS:        byte(cfg.MQTT.QoS),
	})
	if err != nil {
		return fmt.Errorf("creating subscriber: %w", err)
	}

	if cfg.Health.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.Health,
			Logger:  log,
			Broker:  client,
			Stats:   svc.Handler(),
			Hub:     hub,
			Version: version,
			RunID:   runID,

			SinkPaths: []string{cfg.Sinks.MessagesPath, cfg.Sinks.ErrorsPath},
		})
		if err != nil {
			return fmt.Errorf("creating HTTP server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting HTTP server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing HTTP server", "error", closeErr)
			}
		}()
	}

	if err := svc.Run(ctx); err != nil {
		return err
	}

	log.Info("statuslogger stopped",
		"messages_logged", svc.Handler().MessagesLogged(),
		"errors_logged", svc.Handler().ErrorsLogged(),
	)
	return nil
}

// getConfigPath returns the YAML configuration path, or "" when none is set.
func getConfigPath() string {
	return os.Getenv(envConfigPath)
}

// getEnvFilePath returns the dotenv file path.
// Uses STATUSLOGGER_ENV_FILE if set, otherwise config.env.
func getEnvFilePath() string {
	if path := os.Getenv(envEnvFile); path != "" {
		return path
	}
	return defaultEnvFile
}

func closeSink(log *logging.Logger, s *sink.Sink) {
	if err := s.Close(); err != nil {
		log.Error("error closing sink", "path", s.Name(), "error", err)
	}
}
