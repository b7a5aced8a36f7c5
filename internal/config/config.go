//
// Package config holds runtime configuration for the feature extraction
// engine: capture settings, analysis parameters and transport options.
// Values come from built-in defaults, an optional YAML file, environment
// overrides and finally command line flags, in that order.
package config

// Default values and hard limits for the engine configuration.
const (
	DefaultDeviceID     = MinDeviceID // System default capture device
	DefaultSampleRate   = 44100       // CD-quality audio
	DefaultFrameLength  = 1024        // Samples per capture frame
	DefaultWindowLength = 2048        // Sliding analysis window (2x frame)
	DefaultLowLatency   = false

	DefaultFreqMin         = 20.0    // Hz, lower edge of the band of interest
	DefaultFreqMax         = 20000.0 // Hz, upper edge
	DefaultRolloffFraction = 0.85    // Cumulative-power fraction for rolloff

	DefaultOnsetSensitivity = 2.0 // k in threshold = mean + k*std
	DefaultOnsetHistory     = 43  // Flux history length, ~1s at typical hop
	DefaultBeatMultiplier   = 1.5 // Energy ratio that flags a beat
	DefaultBeatSmoothing    = 0.9 // Weight of the previous energy baseline

	DefaultFeatureSmoothing = 0.7  // Weight of the previous published value
	DefaultSilenceFloor     = 1e-6 // Peak amplitude below which a cycle is skipped

	DefaultQueueCapacity = 16 // Frames buffered between callback and loop

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 selects the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxWindowFrames = 16384  // Maximum analysis window length (power of 2)
)
