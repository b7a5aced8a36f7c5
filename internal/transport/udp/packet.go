package udp

import (
	"bytes"
	"encoding/binary"
	"io"

	"beatscope/internal/analysis"
)

/*
UDP Packet Structure (BigEndian)

| Field              | Data Type | Size (Bytes) |
|--------------------|-----------|--------------|
| Sequence Number    | uint32    | 4            |
| Timestamp          | int64     | 8            |
| RMS                | float32   | 4            |
| Peak Amplitude     | float32   | 4            |
| Zero Crossing Rate | float32   | 4            |
| Spectral Centroid  | float32   | 4            |
| Spectral Rolloff   | float32   | 4            |
| Spectral Bandwidth | float32   | 4            |
| Peak Frequency     | float32   | 4            |
| Normalized RMS     | float32   | 4            |
| Normalized Centroid| float32   | 4            |
| Onset Flag         | uint8     | 1            |
| Onset Strength     | float32   | 4            |
| Beat Flag          | uint8     | 1            |
| Beat Strength      | float32   | 4            |
*/

// Packet is the fixed-size wire form of one feature snapshot. The
// timestamp is nanoseconds since epoch.
type Packet struct {
	Sequence           uint32
	Timestamp          int64
	RMS                float32
	PeakAmplitude      float32
	ZeroCrossingRate   float32
	SpectralCentroid   float32
	SpectralRolloff    float32
	SpectralBandwidth  float32
	PeakFrequency      float32
	NormalizedRMS      float32
	NormalizedCentroid float32
	OnsetFlag          uint8
	OnsetStrength      float32
	BeatFlag           uint8
	BeatStrength       float32
}

// NewPacket packs a feature set for the wire.
func NewPacket(seq uint32, fs analysis.FeatureSet) Packet {
	p := Packet{
		Sequence:           seq,
		Timestamp:          fs.Timestamp.UnixNano(),
		RMS:                float32(fs.RMS),
		PeakAmplitude:      float32(fs.PeakAmplitude),
		ZeroCrossingRate:   float32(fs.ZeroCrossingRate),
		SpectralCentroid:   float32(fs.SpectralCentroid),
		SpectralRolloff:    float32(fs.SpectralRolloff),
		SpectralBandwidth:  float32(fs.SpectralBandwidth),
		PeakFrequency:      float32(fs.PeakFrequency),
		NormalizedRMS:      float32(fs.NormalizedRMS),
		NormalizedCentroid: float32(fs.NormalizedCentroid),
		OnsetStrength:      float32(fs.OnsetStrength),
		BeatStrength:       float32(fs.BeatStrength),
	}
	if fs.OnsetDetected {
		p.OnsetFlag = 1
	}
	if fs.BeatDetected {
		p.BeatFlag = 1
	}
	return p
}

// Encode writes the packet in BigEndian byte order.
func (p Packet) Encode(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, p)
}

// DecodePacket reads a packet written by Encode.
func DecodePacket(r io.Reader) (Packet, error) {
	var p Packet
	err := binary.Read(r, binary.BigEndian, &p)
	return p, err
}
