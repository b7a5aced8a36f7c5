package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"beatscope/cmd"
	"beatscope/internal/analysis"
	"beatscope/internal/audio"
	"beatscope/internal/config"
	"beatscope/internal/engine"
	applog "beatscope/internal/log"
	"beatscope/internal/transport"
	"beatscope/internal/transport/udp"
	"beatscope/pkg/build"
)

// main is the entry point for the feature extraction engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information and logging
//   - Initialize PortAudio
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the analysis engine on the selected source
//   - Attach feature consumers (console, WebSocket, UDP)
//   - Start recording if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the engine, transports, and recording in order
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("Startup: %v", err)
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("Startup: %v", err)
	}
	defer audio.Terminate()

	if cfg.Command == "list" {
		if err := audio.ListDevices(); err != nil {
			applog.Fatalf("Startup: %v", err)
		}
		return
	}

	source, err := buildSource(cfg)
	if err != nil {
		applog.Fatalf("Startup: %v", err)
	}

	eng, err := engine.New(cfg, source)
	if err != nil {
		applog.Fatalf("Startup: %v", err)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	eng.Subscribe(consoleSubscriber)

	var transports []transport.Transport
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		transports = append(transports, ws)
		eng.Subscribe(func(fs analysis.FeatureSet) {
			ws.Send(fs)
		})
	}

	var udpPub *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Fatalf("Startup: %v", err)
		}
		udpPub, err = udp.NewPublisher(time.Duration(cfg.Transport.UDPSendInterval), sender, eng)
		if err != nil {
			applog.Fatalf("Startup: %v", err)
		}
		transports = append(transports, sender)
	}

	eng.OnError(func(err error) {
		applog.Errorf("Engine: %v", err)
	})

	if err := eng.Start(); err != nil {
		applog.Fatalf("Startup: %v", err)
	}

	if cfg.Recording.Enabled {
		if err := eng.StartRecording(cfg.Recording.OutputFile); err != nil {
			applog.Fatalf("Startup: %v", err)
		}
	}

	if udpPub != nil {
		udpPub.Start()
	}

	// Block until interrupted or the analysis loop finishes on its
	// own, as it does when a WAV input reaches end of stream.
	select {
	case <-sig:
	case <-eng.Done():
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if udpPub != nil {
		udpPub.Stop()
	}
	if err := eng.Stop(); err != nil {
		applog.Errorf("Shutdown: %v", err)
	}
	if cfg.Recording.Enabled {
		applog.Infof("Shutdown: Recording saved to %s", cfg.Recording.OutputFile)
	}
	for _, t := range transports {
		if err := t.Close(); err != nil {
			applog.Errorf("Shutdown: %v", err)
		}
	}
}

// buildSource selects the frame source: a WAV file when configured,
// otherwise a capture device by name or index.
func buildSource(cfg *config.Config) (audio.SampleSource, error) {
	if cfg.Audio.InputFile != "" {
		src, err := audio.NewFileSource(cfg.Audio.InputFile, cfg.Audio.FrameLength, true)
		if err != nil {
			return nil, err
		}
		// The file dictates the rate; keep the analyzer consistent.
		cfg.Audio.SampleRate = src.SampleRate()
		return src, nil
	}

	var (
		device *portaudio.DeviceInfo
		err    error
	)
	if cfg.Audio.DeviceName != "" {
		device, err = audio.InputDeviceByName(cfg.Audio.DeviceName)
	} else {
		device, err = audio.InputDevice(cfg.Audio.InputDevice)
	}
	if err != nil {
		return nil, err
	}
	return audio.NewDeviceSource(device, cfg.Audio.SampleRate, cfg.Audio.FrameLength, cfg.Audio.LowLatency), nil
}

// consoleSubscriber logs events at info level and every cycle at debug.
func consoleSubscriber(fs analysis.FeatureSet) {
	if fs.OnsetDetected {
		applog.Infof("Onset  strength=%.2f centroid=%.0fHz", fs.OnsetStrength, fs.SpectralCentroid)
	}
	if fs.BeatDetected {
		applog.Infof("Beat   strength=%.2f rms=%.3f", fs.BeatStrength, fs.RMS)
	}
	applog.Debugf("Cycle  rms=%.3f peak=%.3f zcr=%.3f centroid=%.0fHz rolloff=%.0fHz bw=%.0fHz",
		fs.RMS, fs.PeakAmplitude, fs.ZeroCrossingRate, fs.SpectralCentroid, fs.SpectralRolloff, fs.SpectralBandwidth)
}
