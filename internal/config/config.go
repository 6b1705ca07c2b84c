// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/eos_sensor/internal/codec"
	"github.com/relabs-tech/eos_sensor/internal/wsclient"
)

// Defaults match the values the firmware shipped with.
const (
	DefaultWSPort           = 8000
	DefaultWSPath           = "/"
	DefaultDeviceID         = "Eos"
	DefaultBoard            = BoardSim
	DefaultI2CBus           = "1"
	DefaultLSM9DS1AGAddr    = 0x6B
	DefaultLSM9DS1MagAddr   = 0x1E
	DefaultSampleInterval   = 100  // milliseconds
	DefaultSendInterval     = 100  // milliseconds
	DefaultLinkPollInterval = 1000 // milliseconds
	DefaultHandshakeTimeout = 5000 // milliseconds
	DefaultStatsInterval    = 10000
	DefaultBufferCapacity   = 512
	DefaultBatchSize        = 32
	DefaultFrameBufferSize  = 4096

	DefaultCollectorListenAddr = ":8000"
	DefaultMQTTBroker          = "tcp://localhost:1883"
	DefaultTopicSamples        = "eos/samples"
)

// Board names accepted by BOARD.
const (
	BoardLSM9DS1 = "lsm9ds1"
	BoardSim     = "sim"
)

// Config holds all application configuration values.
// It is read-only once Load returns.
type Config struct {
	// Collector endpoint
	WSHost   string
	WSPort   int
	WSPath   string
	DeviceID string

	// Board
	Board          string // "lsm9ds1" or "sim"
	NetInterface   string // empty: any non-loopback interface
	StatusLEDPin   string // empty: no indicator
	I2CBus         string
	LSM9DS1AGAddr  uint16
	LSM9DS1MagAddr uint16
	SimFailEvery   int // sim board: every nth read fails, 0 disables

	// Timing (milliseconds)
	SampleInterval   int
	SendInterval     int
	LinkPollInterval int
	HandshakeTimeout int
	StatsInterval    int

	// Buffers
	BufferCapacity  int
	BatchSize       int
	FrameBufferSize int

	// Collector / MQTT
	CollectorListenAddr   string
	MQTTBroker            string
	MQTTClientIDCollector string
	MQTTClientIDConsole   string
	TopicSamples          string
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with defaults. WSHost is left empty.
func Default() *Config {
	return &Config{
		WSPort:                DefaultWSPort,
		WSPath:                DefaultWSPath,
		DeviceID:              DefaultDeviceID,
		Board:                 DefaultBoard,
		I2CBus:                DefaultI2CBus,
		LSM9DS1AGAddr:         DefaultLSM9DS1AGAddr,
		LSM9DS1MagAddr:        DefaultLSM9DS1MagAddr,
		SampleInterval:        DefaultSampleInterval,
		SendInterval:          DefaultSendInterval,
		LinkPollInterval:      DefaultLinkPollInterval,
		HandshakeTimeout:      DefaultHandshakeTimeout,
		StatsInterval:         DefaultStatsInterval,
		BufferCapacity:        DefaultBufferCapacity,
		BatchSize:             DefaultBatchSize,
		FrameBufferSize:       DefaultFrameBufferSize,
		CollectorListenAddr:   DefaultCollectorListenAddr,
		MQTTBroker:            DefaultMQTTBroker,
		MQTTClientIDCollector: "eos-collector",
		MQTTClientIDConsole:   "eos-console",
		TopicSamples:          DefaultTopicSamples,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Collector endpoint
	case "WS_HOST":
		c.WSHost = value
	case "WS_PORT":
		return parseInt(key, value, 1, 65535, &c.WSPort)
	case "WS_PATH":
		c.WSPath = value
	case "DEVICE_ID":
		c.DeviceID = value

	// Board
	case "BOARD":
		c.Board = strings.ToLower(value)
	case "NET_INTERFACE":
		c.NetInterface = value
	case "STATUS_LED_PIN":
		c.StatusLEDPin = value
	case "I2C_BUS":
		c.I2CBus = value
	case "LSM9DS1_AG_ADDR":
		return parseAddr(key, value, &c.LSM9DS1AGAddr)
	case "LSM9DS1_MAG_ADDR":
		return parseAddr(key, value, &c.LSM9DS1MagAddr)
	case "SIM_FAIL_EVERY":
		return parseInt(key, value, 0, 1<<20, &c.SimFailEvery)

	// Timing
	case "SAMPLE_INTERVAL":
		return parseInt(key, value, 1, 60000, &c.SampleInterval)
	case "SEND_INTERVAL":
		return parseInt(key, value, 1, 60000, &c.SendInterval)
	case "LINK_POLL_INTERVAL":
		return parseInt(key, value, 1, 60000, &c.LinkPollInterval)
	case "HANDSHAKE_TIMEOUT":
		return parseInt(key, value, 1, 600000, &c.HandshakeTimeout)
	case "STATS_INTERVAL":
		return parseInt(key, value, 0, 3600000, &c.StatsInterval)

	// Buffers
	case "BUFFER_CAPACITY":
		return parseInt(key, value, 1, 1<<20, &c.BufferCapacity)
	case "BATCH_SIZE":
		return parseInt(key, value, 1, 1<<16, &c.BatchSize)
	case "FRAME_BUFFER_SIZE":
		return parseInt(key, value, 256, 1<<24, &c.FrameBufferSize)

	// Collector / MQTT
	case "COLLECTOR_LISTEN_ADDR":
		c.CollectorListenAddr = value
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COLLECTOR":
		c.MQTTClientIDCollector = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_SAMPLES":
		c.TopicSamples = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseInt(key, value string, lo, hi int, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	*dst = v
	return nil
}

func parseAddr(key, value string, dst *uint16) error {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = uint16(addr)
	return nil
}

// Validate checks that required fields are set and that the buffers fit together.
func (c *Config) Validate() error {
	if c.WSHost == "" {
		return fmt.Errorf("WS_HOST is required")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("WS_PATH must start with '/', got %q", c.WSPath)
	}
	if c.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID must not be empty")
	}
	switch c.Board {
	case BoardLSM9DS1, BoardSim:
	default:
		return fmt.Errorf("BOARD must be %q or %q, got %q", BoardLSM9DS1, BoardSim, c.Board)
	}
	if c.BatchSize > c.BufferCapacity {
		return fmt.Errorf("BATCH_SIZE (%d) must not exceed BUFFER_CAPACITY (%d)", c.BatchSize, c.BufferCapacity)
	}
	if need := codec.EncodedLen(c.BatchSize) + wsclient.MaxHeaderLen; need > c.FrameBufferSize {
		return fmt.Errorf("FRAME_BUFFER_SIZE (%d) too small for BATCH_SIZE %d (need %d)", c.FrameBufferSize, c.BatchSize, need)
	}
	if len(c.DeviceID)+wsclient.MaxHeaderLen > c.FrameBufferSize {
		return fmt.Errorf("DEVICE_ID does not fit FRAME_BUFFER_SIZE")
	}
	return nil
}

// Addr returns the collector address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
}

func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.SampleInterval) * time.Millisecond
}

func (c *Config) SendPeriod() time.Duration {
	return time.Duration(c.SendInterval) * time.Millisecond
}

func (c *Config) LinkPollPeriod() time.Duration {
	return time.Duration(c.LinkPollInterval) * time.Millisecond
}

func (c *Config) HandshakeTimeoutDuration() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Millisecond
}

func (c *Config) StatsPeriod() time.Duration {
	return time.Duration(c.StatsInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
