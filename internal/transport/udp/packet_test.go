package udp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"beatscope/internal/analysis"
)

func sampleFeatures() analysis.FeatureSet {
	return analysis.FeatureSet{
		Timestamp:          time.Unix(0, 1700000000000000000),
		RMS:                0.25,
		PeakAmplitude:      0.5,
		ZeroCrossingRate:   0.1,
		SpectralCentroid:   1234.5,
		SpectralRolloff:    8000,
		SpectralBandwidth:  450.25,
		PeakFrequency:      1230,
		OnsetDetected:      true,
		OnsetStrength:      3.5,
		BeatDetected:       false,
		BeatStrength:       0,
		NormalizedRMS:      1.0,
		NormalizedCentroid: 0.06,
	}
}

func TestPacketRoundTrip(t *testing.T) {
	fs := sampleFeatures()

	var buf bytes.Buffer
	if err := NewPacket(7, fs).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodePacket(&buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if got.Sequence != 7 {
		t.Errorf("sequence = %d", got.Sequence)
	}
	if got.Timestamp != fs.Timestamp.UnixNano() {
		t.Errorf("timestamp = %d", got.Timestamp)
	}
	if got.SpectralCentroid != float32(fs.SpectralCentroid) {
		t.Errorf("centroid = %f", got.SpectralCentroid)
	}
	if got.OnsetFlag != 1 || got.BeatFlag != 0 {
		t.Errorf("flags = %d, %d", got.OnsetFlag, got.BeatFlag)
	}
	if got.OnsetStrength != 3.5 {
		t.Errorf("onset strength = %f", got.OnsetStrength)
	}
}

type stubProvider struct {
	fs analysis.FeatureSet
	ok bool
}

func (s *stubProvider) Latest() (analysis.FeatureSet, bool) {
	return s.fs, s.ok
}

func TestPublisherSendsOverLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	pub, err := NewPublisher(5*time.Millisecond, sender, &stubProvider{fs: sampleFeatures(), ok: true})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	pub.Start()
	defer pub.Stop()

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw := make([]byte, 1024)
	n, _, err := listener.ReadFromUDP(raw)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}

	got, err := DecodePacket(bytes.NewReader(raw[:n]))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got.Sequence == 0 {
		t.Error("sequence should start at 1")
	}
	if got.RMS != 0.25 || got.OnsetFlag != 1 {
		t.Errorf("unexpected packet contents: %+v", got)
	}

	if err := pub.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stopping twice is fine.
	if err := pub.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestPublisherSkipsWhenNothingAnalyzed(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	pub, err := NewPublisher(5*time.Millisecond, sender, &stubProvider{ok: false})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	pub.Start()

	listener.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	raw := make([]byte, 1024)
	if _, _, err := listener.ReadFromUDP(raw); err == nil {
		t.Error("expected no packets before the first analysis cycle")
	}
	pub.Stop()
}

func TestSenderClosedRejectsSend(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sender.Send([]byte{1, 2, 3}); err == nil {
		t.Error("expected error sending on closed sender")
	}
}
