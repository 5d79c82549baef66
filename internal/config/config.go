package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultDataDir = "/home/bot"
const defaultPort = 5000

const (
	// Discord asks clients to heartbeat every 41.25s.
	DefaultHeartbeatInterval = 41250 * time.Millisecond
	DefaultExitDelay         = 2 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultPollInterval      = time.Minute
	DefaultPollTimeout       = 10 * time.Second
	DefaultMaxRestarts       = 1000
	DefaultDeploydAddress    = ":9090"
	DefaultWorkerURL         = "http://127.0.0.1:5000"
)

// Configuration is the flat settings map shared by the worker and the
// guardian CLI. Values are read through the typed getters below.
type Configuration map[string]any

// ReadConfig reads the process environment (and $DATA_DIR/.env when present)
// into a Configuration. It also applies the log level.
func ReadConfig() Configuration {
	c := Configuration{}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	c["data_dir"] = dataDir

	// The .env file is optional; hosted platforms inject secrets directly.
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("No .env file in %s, reading from environment variables", dataDir)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	level := ParseLogLevel(logLevel)
	c["log_level"] = level.String()
	SetLogLevel(level)

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c["discord_token"] = token
	}

	port := defaultPort
	if s := os.Getenv("PORT"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 65535 {
			logrus.Errorf("Invalid PORT value %q. Using default port %d.", s, defaultPort)
		} else {
			port = v
		}
	}
	c["port"] = port

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		c["api_key"] = apiKey
	}

	c["heartbeat_interval"] = envDuration("HEARTBEAT_INTERVAL", DefaultHeartbeatInterval)
	c["exit_delay"] = envDuration("EXIT_DELAY", DefaultExitDelay)
	c["shutdown_timeout"] = envDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout)
	c["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	if url := os.Getenv("MONITOR_WEBHOOK_URL"); url != "" {
		logrus.Info("Status monitor webhook configured")
		c["monitor_webhook_url"] = url
	}

	maxRestarts := DefaultMaxRestarts
	if s := os.Getenv("SUPERVISOR_MAX_RESTARTS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			maxRestarts = v
		} else {
			logrus.Errorf("Error parsing SUPERVISOR_MAX_RESTARTS %q. Setting to default.", s)
		}
	}
	c["supervisor_max_restarts"] = maxRestarts
	c["supervisor_metrics_address"] = os.Getenv("SUPERVISOR_METRICS_ADDRESS")

	workerURL := os.Getenv("WORKER_URL")
	if workerURL == "" {
		workerURL = DefaultWorkerURL
	}
	c["worker_url"] = strings.TrimRight(workerURL, "/")
	c["worker_insecure_tls"] = os.Getenv("WORKER_INSECURE_TLS") == "true"

	pollURL := os.Getenv("POLL_URL")
	if pollURL == "" {
		pollURL = c.WorkerURL()
	}
	c["poll_url"] = strings.TrimRight(pollURL, "/")
	c["poll_interval"] = envDuration("POLL_INTERVAL", DefaultPollInterval)
	c["poll_timeout"] = envDuration("POLL_TIMEOUT", DefaultPollTimeout)
	c["dispatch_url"] = os.Getenv("DISPATCH_URL")

	c["deployd_token"] = os.Getenv("DEPLOYD_TOKEN")
	deploydAddress := os.Getenv("DEPLOYD_LISTEN_ADDRESS")
	if deploydAddress == "" {
		deploydAddress = DefaultDeploydAddress
	}
	c["deployd_listen_address"] = deploydAddress
	c["deployd_watch_path"] = os.Getenv("DEPLOYD_WATCH_PATH")

	return c
}

// envDuration accepts Go durations ("90s") and bare seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil {
		logrus.Errorf("Error parsing %s: %s. Setting to default %s.", key, err, def)
		return def
	}
	return d
}

// ParseDuration parses a positive duration given either as a Go duration
// string or as a number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

func (c Configuration) DataDir() string {
	return c.GetString("data_dir", defaultDataDir)
}

func (c Configuration) DiscordToken() string {
	return c.GetString("discord_token", "")
}

// ListenAddress is where the control surface binds. All interfaces, because
// the external poller reaches it through the platform's proxy.
func (c Configuration) ListenAddress() string {
	port, err := c.GetInt("port", defaultPort)
	if err != nil {
		logrus.Errorf("Invalid port in configuration: %s", err)
	}
	return fmt.Sprintf("0.0.0.0:%d", port)
}

func (c Configuration) APIKey() string {
	return c.GetString("api_key", "")
}

func (c Configuration) HeartbeatInterval() time.Duration {
	return c.GetDuration("heartbeat_interval", DefaultHeartbeatInterval)
}

func (c Configuration) ExitDelay() time.Duration {
	return c.GetDuration("exit_delay", DefaultExitDelay)
}

func (c Configuration) ShutdownTimeout() time.Duration {
	return c.GetDuration("shutdown_timeout", DefaultShutdownTimeout)
}

func (c Configuration) ProfilingEnabled() bool {
	return c.GetBool("profiling_enabled", false)
}

func (c Configuration) MonitorWebhookURL() string {
	return c.GetString("monitor_webhook_url", "")
}

func (c Configuration) MaxRestarts() int {
	v, err := c.GetInt("supervisor_max_restarts", DefaultMaxRestarts)
	if err != nil || v <= 0 {
		return DefaultMaxRestarts
	}
	return v
}

func (c Configuration) SupervisorMetricsAddress() string {
	return c.GetString("supervisor_metrics_address", "")
}

func (c Configuration) WorkerURL() string {
	return c.GetString("worker_url", DefaultWorkerURL)
}

// WorkerInsecureTLS skips certificate checks when the worker is reached
// through a proxy with a self-signed certificate.
func (c Configuration) WorkerInsecureTLS() bool {
	return c.GetBool("worker_insecure_tls", false)
}

func (c Configuration) PollURL() string {
	return c.GetString("poll_url", c.WorkerURL())
}

func (c Configuration) PollInterval() time.Duration {
	return c.GetDuration("poll_interval", DefaultPollInterval)
}

func (c Configuration) PollTimeout() time.Duration {
	return c.GetDuration("poll_timeout", DefaultPollTimeout)
}

func (c Configuration) DispatchURL() string {
	return c.GetString("dispatch_url", "")
}

func (c Configuration) DeploydToken() string {
	return c.GetString("deployd_token", "")
}

func (c Configuration) DeploydListenAddress() string {
	return c.GetString("deployd_listen_address", DefaultDeploydAddress)
}

func (c Configuration) DeploydWatchPath() string {
	return c.GetString("deployd_watch_path", "")
}

// GetInt safely extracts an int from Configuration, with a default fallback
func (c Configuration) GetInt(key string, def int) (int, error) {
	if v, ok := c[key]; ok {
		switch val := v.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			return int(val), nil
		case float32:
			return int(val), nil
		default:
			return def, fmt.Errorf("value %v for key %q cannot be converted to int", val, key)
		}
	}
	return def, nil
}

func (c Configuration) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := c[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return def
}

func (c Configuration) GetString(key string, def string) string {
	if v, ok := c[key]; ok {
		if val, ok := v.(string); ok && val != "" {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool from Configuration, with a default fallback
func (c Configuration) GetBool(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		logrus.WithFields(logrus.Fields{"level": logLevel, "setting_to": logrus.InfoLevel.String()}).Error("Invalid log level")
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
