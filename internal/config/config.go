package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/gpio-monitor/internal/logger"
)

// Config holds the settings of the gpio-monitor daemon.
type Config struct {
	// LogLevel is the minimum level of messages written to the log.
	LogLevel string `yaml:"log_level"`
	// Timeout bounds every D-Bus and gRPC call.
	Timeout time.Duration `yaml:"timeout"`
	// MetricsAddress is the listen address of the Prometheus endpoint. Empty disables it.
	MetricsAddress string `yaml:"metrics_addr"`
	// StatusAddress is the listen address of the gRPC health service. Empty disables it.
	StatusAddress string `yaml:"status_addr"`
	// Lines lists the GPIO inputs to monitor.
	Lines []Line `yaml:"lines"`
	// PowerGood configures the IPMB power-good poller.
	PowerGood PowerGood `yaml:"power_good"`
}

// Line describes one monitored GPIO input.
type Line struct {
	// Name is the human-readable label used in log messages.
	Name string `yaml:"name"`
	// Chip is the GPIO character device, e.g. /dev/gpiochip0.
	Chip string `yaml:"chip"`
	// Offset is the line offset within the chip.
	Offset int `yaml:"offset"`
	// Edge selects which transitions are reported: rising, falling or both.
	Edge string `yaml:"edge"`
	// ActiveLow inverts the logical level of the line.
	ActiveLow bool `yaml:"active_low"`
	// Continue keeps monitoring the line after the first event.
	Continue bool `yaml:"continue"`
	// Target is the systemd unit started on every event. Empty means no action.
	Target string `yaml:"target"`
}

// PowerGood configures the periodic power-good sampling over IPMB.
type PowerGood struct {
	// Enabled turns the poller on.
	Enabled bool `yaml:"enabled"`
	// Interval is the delay between two sampling cycles.
	Interval time.Duration `yaml:"interval"`
	// NetFn is the IPMB network function code.
	NetFn uint8 `yaml:"netfn"`
	// LUN is the IPMB logical unit number.
	LUN uint8 `yaml:"lun"`
	// Cmd is the IPMB command code.
	Cmd uint8 `yaml:"cmd"`
	// Payload is the hex-encoded request payload.
	Payload string `yaml:"payload"`
	// StatusOffset is the index of the GPIO status byte in the response.
	StatusOffset int `yaml:"status_offset"`
	// CPUMask selects the CPU power-good bit.
	CPUMask uint8 `yaml:"cpu_mask"`
	// PCHMask selects the platform chipset power-good bit.
	PCHMask uint8 `yaml:"pch_mask"`
	// Channels maps every sampled host to the property it publishes.
	Channels []Channel `yaml:"channels"`
	// DBus describes the object exporting the properties.
	DBus DBusObject `yaml:"dbus"`
	// LogLevel overrides the daemon log level for poller messages when set.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Channel binds an IPMB host address to a published property name.
type Channel struct {
	// Property is the name of the published boolean property.
	Property string `yaml:"property"`
	// Host is the IPMB target address.
	Host uint8 `yaml:"host"`
}

// DBusObject names the bus service, object path and interface of exported properties.
type DBusObject struct {
	Service   string `yaml:"service"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
}

const (
	// DefaultConfigFilename is the default filename for daemon settings.
	DefaultConfigFilename = "gpio-monitor.yaml"

	// DefaultTimeout is the default duration for bus and RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultLogLevel is used when log_level is empty.
	DefaultLogLevel = "info"

	// DefaultPowerGoodInterval is the power-good sampling cadence.
	DefaultPowerGoodInterval = 200 * time.Millisecond

	// DefaultNetFn is the OEM network function used for the GPIO status read.
	DefaultNetFn uint8 = 0x38
	// DefaultCmd is the GPIO status read command.
	DefaultCmd uint8 = 0x03
	// DefaultPayload is the Facebook IANA number in little-endian order.
	DefaultPayload = "15a000"
	// DefaultStatusOffset is the position of the GPIO status byte in the reply.
	DefaultStatusOffset = 3
	// DefaultCPUMask selects the CPU power-good bit.
	DefaultCPUMask uint8 = 0x01
	// DefaultPCHMask selects the chipset power-good bit.
	DefaultPCHMask uint8 = 0x02

	// DefaultDBusService is the well-known bus name owned by the daemon.
	DefaultDBusService = "xyz.openbmc_project.Gpio.Monitor"
	// DefaultDBusPath is the object path exporting power-good properties.
	DefaultDBusPath = "/xyz/openbmc_project/misc/power_good"
	// DefaultDBusInterface is the interface holding power-good properties.
	DefaultDBusInterface = "xyz.openbmc_project.Misc.PowerGood"

	// EdgeRising reports only low-to-high transitions.
	EdgeRising = "rising"
	// EdgeFalling reports only high-to-low transitions.
	EdgeFalling = "falling"
	// EdgeBoth reports every transition.
	EdgeBoth = "both"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNothingToMonitor is returned when neither lines nor the poller are configured.
	errNothingToMonitor = errors.New("no lines configured and power-good polling disabled")
	// errLineNameRequired is returned when a line has no label.
	errLineNameRequired = errors.New("line name must be provided")
	// errLineChipRequired is returned when a line has no chip device.
	errLineChipRequired = errors.New("line chip must be provided")
	// errDuplicateLine is returned when two lines share a label.
	errDuplicateLine = errors.New("duplicate line name")
	// errInvalidEdge is returned for an unknown edge selector.
	errInvalidEdge = errors.New("edge must be rising, falling or both")
	// errInvalidOffset is returned for a negative line or status offset.
	errInvalidOffset = errors.New("offset must not be negative")
	// errMaskRequired is returned when a power-good mask is zero.
	errMaskRequired = errors.New("power-good masks must be non-zero")
	// errPropertyRequired is returned when a channel has no property name.
	errPropertyRequired = errors.New("channel property must be provided")
	// errDuplicateProperty is returned when two channels publish the same property.
	errDuplicateProperty = errors.New("duplicate channel property")
	// errInvalidLogLevel is returned for an unknown log level name.
	errInvalidLogLevel = errors.New("unknown log level")
)

// DefaultChannels returns the two power-good channels sampled when none are configured.
func DefaultChannels() []Channel {
	return []Channel{
		{Property: "Power_Good1", Host: 0},
		{Property: "Power_Good2", Host: 1},
	}
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if len(settings.Lines) == 0 && !settings.PowerGood.Enabled {
		return errNothingToMonitor
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("log level %q: %w", settings.LogLevel, errInvalidLogLevel)
	}

	for _, address := range []string{settings.MetricsAddress, settings.StatusAddress} {
		if address == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(address); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", address, err)
		}
	}

	if err := validateLines(settings.Lines); err != nil {
		return err
	}

	if !settings.PowerGood.Enabled {
		return nil
	}

	return validatePowerGood(&settings.PowerGood)
}

// validateLines checks every line entry and normalizes the edge selector.
func validateLines(lines []Line) error {
	seen := make(map[string]struct{}, len(lines))

	for i := range lines {
		line := &lines[i]

		if line.Name == "" {
			return fmt.Errorf("line #%d: %w", i, errLineNameRequired)
		}

		if _, ok := seen[line.Name]; ok {
			return fmt.Errorf("line %q: %w", line.Name, errDuplicateLine)
		}

		seen[line.Name] = struct{}{}

		if line.Chip == "" {
			return fmt.Errorf("line %q: %w", line.Name, errLineChipRequired)
		}

		if line.Offset < 0 {
			return fmt.Errorf("line %q: %w", line.Name, errInvalidOffset)
		}

		line.Edge = strings.ToLower(strings.TrimSpace(line.Edge))
		switch line.Edge {
		case "":
			line.Edge = EdgeBoth
		case EdgeRising, EdgeFalling, EdgeBoth:
		default:
			return fmt.Errorf("line %q: %w", line.Name, errInvalidEdge)
		}
	}

	return nil
}

// validatePowerGood fills poller defaults and checks masks and channels.
func validatePowerGood(pg *PowerGood) error {
	if pg.Interval <= 0 {
		pg.Interval = DefaultPowerGoodInterval
	}

	// NetFn, Cmd and StatusOffset zero are valid, so defaults only apply to an
	// empty request. A custom request keeps its status offset as written.
	if pg.NetFn == 0 && pg.Cmd == 0 && pg.Payload == "" {
		pg.NetFn = DefaultNetFn
		pg.Cmd = DefaultCmd
		pg.Payload = DefaultPayload

		if pg.StatusOffset == 0 {
			pg.StatusOffset = DefaultStatusOffset
		}
	}

	if pg.LogLevel != "" {
		if _, ok := logger.ParseLogLevel(pg.LogLevel); !ok {
			return fmt.Errorf("power-good log level %q: %w", pg.LogLevel, errInvalidLogLevel)
		}
	}

	if _, err := hex.DecodeString(pg.Payload); err != nil {
		return fmt.Errorf("invalid power-good payload: %w", err)
	}

	if pg.StatusOffset < 0 {
		return fmt.Errorf("power-good status offset: %w", errInvalidOffset)
	}

	if pg.CPUMask == 0 && pg.PCHMask == 0 {
		pg.CPUMask = DefaultCPUMask
		pg.PCHMask = DefaultPCHMask
	}

	if pg.CPUMask == 0 || pg.PCHMask == 0 {
		return errMaskRequired
	}

	if len(pg.Channels) == 0 {
		pg.Channels = DefaultChannels()
	}

	seen := make(map[string]struct{}, len(pg.Channels))

	for i, ch := range pg.Channels {
		if ch.Property == "" {
			return fmt.Errorf("channel #%d: %w", i, errPropertyRequired)
		}

		if _, ok := seen[ch.Property]; ok {
			return fmt.Errorf("channel %q: %w", ch.Property, errDuplicateProperty)
		}

		seen[ch.Property] = struct{}{}
	}

	if pg.DBus.Service == "" {
		pg.DBus.Service = DefaultDBusService
	}

	if pg.DBus.Path == "" {
		pg.DBus.Path = DefaultDBusPath
	}

	if pg.DBus.Interface == "" {
		pg.DBus.Interface = DefaultDBusInterface
	}

	return nil
}

// RequestPayload decodes the hex payload sent with every power-good request.
func (pg *PowerGood) RequestPayload() []byte {
	payload, err := hex.DecodeString(pg.Payload)
	if err != nil {
		return nil
	}

	return payload
}
