// Package config loads the button-agent configuration.
//
// Values are resolved in this order: built-in defaults, the YAML file, an
// optional env file, then BUTTON_AGENT_* environment variables. The result is
// validated before use; an invalid configuration is fatal at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/button-agent/config.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the root configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Link      LinkConfig      `yaml:"link"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Relay     RelayConfig     `yaml:"relay"`
	Indicator IndicatorConfig `yaml:"indicator"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	EnvFile   string          `yaml:"env_file"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	ClientID string `yaml:"client_id"`
}

// LinkConfig configures the network link watcher.
type LinkConfig struct {
	Interface      string        `yaml:"interface"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ConnectCommand []string      `yaml:"connect_command"`
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	QoS             int           `yaml:"qos"`
	KeepAlive       time.Duration `yaml:"keepalive"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ConnectRetry    time.Duration `yaml:"connect_retry"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
	InboundTopics   []string      `yaml:"inbound_topics"`
	InboundQoS      int           `yaml:"inbound_qos"`
	IdentifierTopic string        `yaml:"identifier_topic"`
	AddressTopic    string        `yaml:"address_topic"`
	StatusTopic     string        `yaml:"status_topic"`
}

// GPIOConfig selects the chip and line offsets.
type GPIOConfig struct {
	Chip            string `yaml:"chip"`
	ButtonLine      int    `yaml:"button_line"`
	ButtonActiveLow bool   `yaml:"button_active_low"`
	LEDLine         int    `yaml:"led_line"`
}

// SamplerConfig configures button polling.
type SamplerConfig struct {
	Period   time.Duration `yaml:"period"`
	Debounce time.Duration `yaml:"debounce"`
}

// RelayConfig configures the event relay and its queue.
type RelayConfig struct {
	Tick          time.Duration `yaml:"tick"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

// IndicatorConfig configures the status LED.
type IndicatorConfig struct {
	Interval   time.Duration `yaml:"interval"`
	FollowLink bool          `yaml:"follow_link"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file overrides it.
// The defaults poll the button every 10ms with an 80ms debounce window and
// keep at most three events queued.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{ClientID: "button-agent"},
		Link: LinkConfig{
			Interface:    "wlan0",
			PollInterval: time.Second,
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			QoS:            0,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ConnectRetry:   5 * time.Second,
			PublishTimeout: 5 * time.Second,
			InboundTopics:  []string{"temperatura"},
			InboundQoS:     0,
		},
		GPIO: GPIOConfig{
			Chip:            "gpiochip0",
			ButtonLine:      17,
			ButtonActiveLow: true,
			LEDLine:         27,
		},
		Sampler: SamplerConfig{
			Period:   10 * time.Millisecond,
			Debounce: 80 * time.Millisecond,
		},
		Relay: RelayConfig{
			Tick:          10 * time.Millisecond,
			QueueCapacity: 3,
		},
		Indicator: IndicatorConfig{Interval: 500 * time.Millisecond},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		EnvFile:   "/run/button-agent.env",
	}
}

// Load reads the YAML file at path and applies env overrides. A missing
// file is an error; a missing env file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	applyEnvOverrides(cfg)
	cfg.fillTopics()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile populates the process environment from path. Variables that
// are already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUTTON_AGENT_CLIENT_ID"); v != "" {
		cfg.Device.ClientID = v
	}
	if v := os.Getenv("BUTTON_AGENT_INTERFACE"); v != "" {
		cfg.Link.Interface = v
	}
	if v := os.Getenv("BUTTON_AGENT_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("BUTTON_AGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("BUTTON_AGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("BUTTON_AGENT_MQTT_QOS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.QoS = n
		}
	}
	if v := os.Getenv("BUTTON_AGENT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BUTTON_AGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// fillTopics derives per-device topics that were left empty.
func (c *Config) fillTopics() {
	base := "device/" + c.Device.ClientID
	if c.MQTT.IdentifierTopic == "" {
		c.MQTT.IdentifierTopic = base + "/id"
	}
	if c.MQTT.AddressTopic == "" {
		c.MQTT.AddressTopic = base + "/ip"
	}
	if c.MQTT.StatusTopic == "" {
		c.MQTT.StatusTopic = base + "/status"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ClientID == "" {
		errs = append(errs, "device.client_id is required")
	}
	if c.Link.Interface == "" {
		errs = append(errs, "link.interface is required")
	}
	if c.Link.PollInterval <= 0 {
		errs = append(errs, "link.poll_interval must be positive")
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.InboundQoS < 0 || c.MQTT.InboundQoS > 2 {
		errs = append(errs, "mqtt.inbound_qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keepalive must be positive")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.ConnectRetry <= 0 {
		errs = append(errs, "mqtt.connect_retry must be positive")
	}
	if c.MQTT.PublishTimeout <= 0 {
		errs = append(errs, "mqtt.publish_timeout must be positive")
	}
	if c.MQTT.IdentifierTopic == "" || c.MQTT.AddressTopic == "" {
		errs = append(errs, "mqtt.identifier_topic and mqtt.address_topic are required")
	}
	if c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required")
	}
	if c.GPIO.ButtonLine < 0 || c.GPIO.LEDLine < 0 {
		errs = append(errs, "gpio line offsets must not be negative")
	}
	if c.GPIO.ButtonLine == c.GPIO.LEDLine {
		errs = append(errs, "gpio.button_line and gpio.led_line must differ")
	}
	if c.Sampler.Period <= 0 {
		errs = append(errs, "sampler.period must be positive")
	}
	if c.Sampler.Debounce < c.Sampler.Period {
		errs = append(errs, "sampler.debounce must be at least one sampler period")
	}
	if c.Relay.Tick <= 0 {
		errs = append(errs, "relay.tick must be positive")
	}
	if c.Relay.QueueCapacity < 1 {
		errs = append(errs, "relay.queue_capacity must be at least 1")
	}
	if c.Indicator.Interval <= 0 {
		errs = append(errs, "indicator.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// PublishQoS returns the outbound QoS as the byte paho expects.
func (c MQTTConfig) PublishQoS() byte {
	return byte(c.QoS)
}

// SubscribeQoS returns the inbound subscription QoS.
func (c MQTTConfig) SubscribeQoS() byte {
	return byte(c.InboundQoS)
}
