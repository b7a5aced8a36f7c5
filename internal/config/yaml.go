// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"beatscope/pkg/bitint"
)

// Duration wraps time.Duration so YAML values can be written as
// "50ms" or "1s". Plain integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the main configuration structure, loadable from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Verbose logging and debug features.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error".
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Feature extraction parameters.
	Recording RecordingConfig `yaml:"recording"` // Raw input recording.
	Transport TransportConfig `yaml:"transport"` // FeatureSet re-publishing.

	Command string `yaml:"-"` // One-off subcommand selected on the CLI.
}

// AudioConfig holds settings for the capture side of the engine.
type AudioConfig struct {
	InputDevice  int     `yaml:"input_device"`  // PortAudio device index (-1 for default).
	DeviceName   string  `yaml:"device_name"`   // Case-insensitive name substring; overrides the index when set.
	SampleRate   float64 `yaml:"sample_rate"`   // Hz (e.g. 44100, 48000).
	FrameLength  int     `yaml:"frame_length"`  // Samples per capture frame (power of 2).
	WindowLength int     `yaml:"window_length"` // Sliding analysis window length (power of 2, >= frame_length).
	LowLatency   bool    `yaml:"low_latency"`   // Request low latency settings from the device.
	InputFile    string  `yaml:"input_file"`    // Analyze a WAV file instead of a capture device.
}

// AnalysisConfig holds the feature extraction parameters.
type AnalysisConfig struct {
	FreqMin          float64  `yaml:"freq_min"`          // Band of interest lower edge (Hz).
	FreqMax          float64  `yaml:"freq_max"`          // Band of interest upper edge (Hz).
	RolloffFraction  float64  `yaml:"rolloff_fraction"`  // Fraction of cumulative power for spectral rolloff.
	OnsetSensitivity float64  `yaml:"onset_sensitivity"` // k in threshold = mean + k*std of the flux history.
	OnsetHistory     int      `yaml:"onset_history"`     // Rolling flux history length.
	BeatMultiplier   float64  `yaml:"beat_multiplier"`   // Energy ratio that flags a beat.
	BeatSmoothing    float64  `yaml:"beat_smoothing"`    // Weight of the previous energy in the baseline update.
	FeatureSmoothing float64  `yaml:"feature_smoothing"` // Weight of the previous value when publishing features.
	SilenceFloor     float64  `yaml:"silence_floor"`     // Peak amplitude below which a cycle is skipped.
	QueueCapacity    int      `yaml:"queue_capacity"`    // Frames buffered between the callback and the loop.
	PollTimeout      Duration `yaml:"poll_timeout"`      // Blocking pop timeout in the analysis loop.
}

// RecordingConfig holds settings for recording the raw input stream.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty for an auto-generated name.
	BitDepth   int    `yaml:"bit_depth"`   // 16 or 24.
}

// TransportConfig holds settings for re-publishing FeatureSets.
type TransportConfig struct {
	WebSocketEnabled bool     `yaml:"websocket_enabled"`  // Broadcast FeatureSet JSON over WebSocket.
	WebSocketAddr    string   `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	UDPEnabled       bool     `yaml:"udp_enabled"`        // Send packed FeatureSets over UDP.
	UDPTargetAddress string   `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:  DefaultDeviceID,
			SampleRate:   DefaultSampleRate,
			FrameLength:  DefaultFrameLength,
			WindowLength: DefaultWindowLength,
			LowLatency:   DefaultLowLatency,
		},
		Analysis: AnalysisConfig{
			FreqMin:          DefaultFreqMin,
			FreqMax:          DefaultFreqMax,
			RolloffFraction:  DefaultRolloffFraction,
			OnsetSensitivity: DefaultOnsetSensitivity,
			OnsetHistory:     DefaultOnsetHistory,
			BeatMultiplier:   DefaultBeatMultiplier,
			BeatSmoothing:    DefaultBeatSmoothing,
			FeatureSmoothing: DefaultFeatureSmoothing,
			SilenceFloor:     DefaultSilenceFloor,
			QueueCapacity:    DefaultQueueCapacity,
			PollTimeout:      Duration(100 * time.Millisecond),
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
			BitDepth:   16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  Duration(33 * time.Millisecond), // ~30Hz
		},
	}
}

// LoadConfig loads configuration from a YAML file. An empty path falls
// back to "config.yaml" if present, otherwise the defaults are used.
// Environment overrides apply after the file, and the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		} else {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run
// with. It is called after every load and again after flag overrides.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside supported range [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FrameLength) {
		return fmt.Errorf("audio.frame_length must be a power of 2, got %d", c.Audio.FrameLength)
	}
	if !bitint.IsPowerOfTwo(c.Audio.WindowLength) {
		return fmt.Errorf("audio.window_length must be a power of 2, got %d", c.Audio.WindowLength)
	}
	if c.Audio.WindowLength < c.Audio.FrameLength {
		return fmt.Errorf("audio.window_length %d is shorter than frame_length %d",
			c.Audio.WindowLength, c.Audio.FrameLength)
	}
	if c.Audio.WindowLength > MaxWindowFrames {
		return fmt.Errorf("audio.window_length %d exceeds maximum %d", c.Audio.WindowLength, MaxWindowFrames)
	}
	if c.Analysis.FreqMin < 0 || c.Analysis.FreqMax <= c.Analysis.FreqMin {
		return fmt.Errorf("analysis frequency range [%.1f, %.1f] is invalid",
			c.Analysis.FreqMin, c.Analysis.FreqMax)
	}
	if c.Analysis.RolloffFraction <= 0 || c.Analysis.RolloffFraction > 1 {
		return fmt.Errorf("analysis.rolloff_fraction must be in (0, 1], got %f", c.Analysis.RolloffFraction)
	}
	if c.Analysis.OnsetSensitivity <= 1 {
		return fmt.Errorf("analysis.onset_sensitivity must be > 1, got %f", c.Analysis.OnsetSensitivity)
	}
	if c.Analysis.OnsetHistory < 4 {
		return fmt.Errorf("analysis.onset_history must be at least 4, got %d", c.Analysis.OnsetHistory)
	}
	if c.Analysis.BeatMultiplier <= 1 {
		return fmt.Errorf("analysis.beat_multiplier must be > 1, got %f", c.Analysis.BeatMultiplier)
	}
	if c.Analysis.BeatSmoothing < 0 || c.Analysis.BeatSmoothing >= 1 {
		return fmt.Errorf("analysis.beat_smoothing must be in [0, 1), got %f", c.Analysis.BeatSmoothing)
	}
	if c.Analysis.FeatureSmoothing < 0 || c.Analysis.FeatureSmoothing >= 1 {
		return fmt.Errorf("analysis.feature_smoothing must be in [0, 1), got %f", c.Analysis.FeatureSmoothing)
	}
	if c.Analysis.QueueCapacity < 1 {
		return fmt.Errorf("analysis.queue_capacity must be at least 1, got %d", c.Analysis.QueueCapacity)
	}
	if c.Analysis.PollTimeout <= 0 {
		return fmt.Errorf("analysis.poll_timeout must be positive, got %s", c.Analysis.PollTimeout)
	}
	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
		return fmt.Errorf("recording.bit_depth must be 16 or 24, got %d", c.Recording.BitDepth)
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded
// configuration. Only a handful of deployment-sensitive knobs are
// exposed this way.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = Duration(dur)
		}
	}
}
