package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"beatscope/internal/config"
	"beatscope/pkg/build"
)

// ParseArgs loads the YAML configuration and applies command line
// overrides on top of it. Flags the user did not set never clobber
// file values.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		configPath       string
		deviceID         int
		deviceName       string
		sampleRate       float64
		frameLength      int
		windowLength     int
		lowLatency       bool
		inputFile        string
		freqMin          float64
		freqMax          float64
		rolloff          float64
		onsetSensitivity float64
		beatMultiplier   float64
		queueCapacity    int
		record           bool
		outputFile       string
		verbose          bool
	)

	command := "run"

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file (default: config.yaml if present)")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device-name", "",
		"Select the input device by name substring instead of ID")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&frameLength, "frame-length", "b", config.DefaultFrameLength,
		"Samples per capture frame (power of 2, affects latency)")
	rootCmd.PersistentFlags().IntVarP(&windowLength, "window-length", "w", config.DefaultWindowLength,
		"Sliding analysis window length (power of 2, >= frame length)")
	rootCmd.PersistentFlags().BoolVarP(&lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "input", "i", "",
		"Analyze a WAV file instead of a capture device")

	// Analysis Configuration
	rootCmd.PersistentFlags().Float64Var(&freqMin, "freq-min", config.DefaultFreqMin,
		"Lower edge of the analyzed frequency band (Hz)")
	rootCmd.PersistentFlags().Float64Var(&freqMax, "freq-max", config.DefaultFreqMax,
		"Upper edge of the analyzed frequency band (Hz)")
	rootCmd.PersistentFlags().Float64Var(&rolloff, "rolloff", config.DefaultRolloffFraction,
		"Cumulative power fraction for spectral rolloff")
	rootCmd.PersistentFlags().Float64Var(&onsetSensitivity, "onset-sensitivity", config.DefaultOnsetSensitivity,
		"Onset threshold sensitivity (threshold = mean + k*std)")
	rootCmd.PersistentFlags().Float64Var(&beatMultiplier, "beat-multiplier", config.DefaultBeatMultiplier,
		"Energy ratio over the baseline that flags a beat")
	rootCmd.PersistentFlags().IntVar(&queueCapacity, "queue-capacity", config.DefaultQueueCapacity,
		"Frames buffered between capture and analysis")

	// Recording Configuration
	rootCmd.PersistentFlags().BoolVarP(&record, "record", "r", false,
		"Record the analyzed audio to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "",
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Command = command

	// Only flags the user actually set override the file.
	flags := rootCmd.PersistentFlags()
	if flags.Changed("device") {
		cfg.Audio.InputDevice = deviceID
	}
	if flags.Changed("device-name") {
		cfg.Audio.DeviceName = deviceName
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = sampleRate
	}
	if flags.Changed("frame-length") {
		cfg.Audio.FrameLength = frameLength
	}
	if flags.Changed("window-length") {
		cfg.Audio.WindowLength = windowLength
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = lowLatency
	}
	if flags.Changed("input") {
		cfg.Audio.InputFile = inputFile
	}
	if flags.Changed("freq-min") {
		cfg.Analysis.FreqMin = freqMin
	}
	if flags.Changed("freq-max") {
		cfg.Analysis.FreqMax = freqMax
	}
	if flags.Changed("rolloff") {
		cfg.Analysis.RolloffFraction = rolloff
	}
	if flags.Changed("onset-sensitivity") {
		cfg.Analysis.OnsetSensitivity = onsetSensitivity
	}
	if flags.Changed("beat-multiplier") {
		cfg.Analysis.BeatMultiplier = beatMultiplier
	}
	if flags.Changed("queue-capacity") {
		cfg.Analysis.QueueCapacity = queueCapacity
	}
	if flags.Changed("record") {
		cfg.Recording.Enabled = record
	}
	if flags.Changed("output") {
		cfg.Recording.OutputFile = outputFile
	}
	if verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
