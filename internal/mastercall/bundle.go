package mastercall

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
)

// magic identifies a master-call bundle file (§6.2).
var magic = [4]byte{'H', 'M', 'M', 'C'}

// bundleVersion is the only version this build writes; Decode accepts it
// and future versions are expected to extend, not replace, this layout.
const bundleVersion uint32 = 1

// ErrBadMagic is returned when a buffer doesn't start with the "HMMC" magic.
var ErrBadMagic = fmt.Errorf("mastercall: bad magic, not a bundle")

// ErrChecksumMismatch is returned when the trailing CRC32 doesn't match the
// decoded payload (§6.2 "Integrity").
var ErrChecksumMismatch = fmt.Errorf("mastercall: checksum mismatch")

// ErrUnsupportedVersion is returned for a version newer than this build
// understands (§6.2 "Version compatibility").
type ErrUnsupportedVersion struct{ Version uint32 }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("mastercall: unsupported bundle version %d", e.Version)
}

// Encode serializes a Template to the exact byte-for-byte layout of §6.2:
//
//	magic            [4]byte   "HMMC"
//	version          uint32    little-endian
//	sampleRate       uint32
//	mfccFrameCount   uint32    F
//	mfccCoeffs       uint32    C
//	hopSamples       uint32
//	frameSamples     uint32
//	durationSec      float32
//	mfcc             F*C float32, row-major
//	pitch contour:   count uint32, then (timeSec, f0, conf) float32 triples
//	harmonic traj.:  count uint32, then (timeSec, centroidHz, conf) triples
//	cadence:         onsetCount uint32, (timeSec) * onsetCount, tempoBPM, rhythmStrength
//	loudness env.:   count uint32, then (timeSec, rmsDbfs, peakDbfs) triples
//	crc32            uint32    over every preceding byte
//
// Every parallel-array field (times/values/confidences) must have matching
// lengths; mismatched lengths are a programmer error in the caller that
// built the Template, so Encode errors rather than truncating silently.
func Encode(t *Template) ([]byte, error) {
	if err := validateParallel("pitch", len(t.PitchTimesSec), len(t.PitchHz), len(t.PitchConfidence)); err != nil {
		return nil, err
	}
	if err := validateParallel("harmonic", len(t.HarmonicTimesSec), len(t.HarmonicCentroid), len(t.HarmonicConfidence)); err != nil {
		return nil, err
	}
	if err := validateParallel("loudness", len(t.LoudnessTimesSec), len(t.LoudnessDBFS), len(t.LoudnessPeakDBFS)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(magic[:])

	write := func(v any) error { return binary.Write(&buf, binary.LittleEndian, v) }

	if err := write(bundleVersion); err != nil {
		return nil, err
	}
	if err := write(uint32(t.SampleRate)); err != nil {
		return nil, err
	}

	numFrames := uint32(len(t.MFCC))
	numCoeffs := uint32(0)
	if numFrames > 0 {
		numCoeffs = uint32(len(t.MFCC[0]))
	}
	if err := write(numFrames); err != nil {
		return nil, err
	}
	if err := write(numCoeffs); err != nil {
		return nil, err
	}

	if err := write(uint32(t.HopSamples)); err != nil {
		return nil, err
	}
	if err := write(uint32(t.FrameSamples)); err != nil {
		return nil, err
	}
	if err := write(float32(t.DurationSec)); err != nil {
		return nil, err
	}

	for _, vec := range t.MFCC {
		row := make([]float32, numCoeffs)
		for i, v := range vec {
			row[i] = float32(v)
		}
		if err := write(row); err != nil {
			return nil, err
		}
	}

	if err := writeTriple(&buf, t.PitchTimesSec, t.PitchHz, t.PitchConfidence); err != nil {
		return nil, err
	}
	if err := writeTriple(&buf, t.HarmonicTimesSec, t.HarmonicCentroid, t.HarmonicConfidence); err != nil {
		return nil, err
	}

	if err := writeFloatSlice(&buf, t.OnsetsSec); err != nil {
		return nil, err
	}
	if err := write(float32(t.Tempo)); err != nil {
		return nil, err
	}
	if err := write(float32(t.RhythmStrength)); err != nil {
		return nil, err
	}

	if err := writeTriple(&buf, t.LoudnessTimesSec, t.LoudnessDBFS, t.LoudnessPeakDBFS); err != nil {
		return nil, err
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := write(sum); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func validateParallel(name string, lens ...int) error {
	for i := 1; i < len(lens); i++ {
		if lens[i] != lens[0] {
			return fmt.Errorf("mastercall: %s arrays have mismatched lengths %v", name, lens)
		}
	}
	return nil
}

// writeTriple writes a count followed by count (a, b, c) float32 triples,
// one triple per index across the three parallel slices (§6.2's pitch
// contour, harmonic trajectory, and loudness envelope sections).
func writeTriple(w io.Writer, a, b, c []float64) error {
	n := len(a)
	if err := binary.Write(w, binary.LittleEndian, uint32(n)); err != nil {
		return err
	}
	flat := make([]float32, 0, n*3)
	for i := 0; i < n; i++ {
		flat = append(flat, float32(a[i]), float32(b[i]), float32(c[i]))
	}
	return binary.Write(w, binary.LittleEndian, flat)
}

func readTriple(r *bytes.Reader) (a, b, c []float64, err error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, nil, err
	}
	flat := make([]float32, n*3)
	if n > 0 {
		if err := binary.Read(r, binary.LittleEndian, &flat); err != nil {
			return nil, nil, nil, err
		}
	}
	a = make([]float64, n)
	b = make([]float64, n)
	c = make([]float64, n)
	for i := uint32(0); i < n; i++ {
		a[i] = float64(flat[i*3])
		b[i] = float64(flat[i*3+1])
		c[i] = float64(flat[i*3+2])
	}
	return a, b, c, nil
}

func writeFloatSlice(w io.Writer, xs []float64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(xs))); err != nil {
		return err
	}
	row := make([]float32, len(xs))
	for i, v := range xs {
		row[i] = float32(v)
	}
	return binary.Write(w, binary.LittleEndian, row)
}

func readFloatSlice(r *bytes.Reader) ([]float64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	row := make([]float32, n)
	if n > 0 {
		if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
			return nil, err
		}
	}
	out := make([]float64, n)
	for i, v := range row {
		out[i] = float64(v)
	}
	return out, nil
}

// Decode parses a bundle previously produced by Encode, verifying the magic,
// version, and trailing CRC32 before trusting any field (§6.2 "Loading").
func Decode(data []byte) (*Template, error) {
	if len(data) < 4+4+4 {
		return nil, ErrBadMagic
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, ErrBadMagic
	}

	payload := data[:len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])
	gotSum := crc32.ChecksumIEEE(payload)
	if wantSum != gotSum {
		return nil, ErrChecksumMismatch
	}

	r := bytes.NewReader(data[4:])

	var version, sampleRate uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version > bundleVersion {
		return nil, ErrUnsupportedVersion{Version: version}
	}
	if err := binary.Read(r, binary.LittleEndian, &sampleRate); err != nil {
		return nil, err
	}

	var numFrames, numCoeffs uint32
	if err := binary.Read(r, binary.LittleEndian, &numFrames); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &numCoeffs); err != nil {
		return nil, err
	}

	var hopSamples, frameSamples uint32
	if err := binary.Read(r, binary.LittleEndian, &hopSamples); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &frameSamples); err != nil {
		return nil, err
	}
	var durationSec float32
	if err := binary.Read(r, binary.LittleEndian, &durationSec); err != nil {
		return nil, err
	}

	mfcc := make([]features.Vector, numFrames)
	for i := range mfcc {
		row := make([]float32, numCoeffs)
		if numCoeffs > 0 {
			if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
				return nil, err
			}
		}
		vec := make(features.Vector, numCoeffs)
		for j, v := range row {
			vec[j] = float64(v)
		}
		mfcc[i] = vec
	}

	pitchTimes, pitchHz, pitchConf, err := readTriple(r)
	if err != nil {
		return nil, err
	}
	harmonicTimes, harmonicCentroid, harmonicConf, err := readTriple(r)
	if err != nil {
		return nil, err
	}

	onsetsSec, err := readFloatSlice(r)
	if err != nil {
		return nil, err
	}
	var tempo, rhythm float32
	if err := binary.Read(r, binary.LittleEndian, &tempo); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &rhythm); err != nil {
		return nil, err
	}

	loudnessTimes, loudnessDBFS, loudnessPeak, err := readTriple(r)
	if err != nil {
		return nil, err
	}

	return &Template{
		SampleRate:         int(sampleRate),
		FrameSamples:       int(frameSamples),
		HopSamples:         int(hopSamples),
		DurationSec:        float64(durationSec),
		MFCC:               mfcc,
		PitchTimesSec:      pitchTimes,
		PitchHz:            pitchHz,
		PitchConfidence:    pitchConf,
		HarmonicTimesSec:   harmonicTimes,
		HarmonicCentroid:   harmonicCentroid,
		HarmonicConfidence: harmonicConf,
		OnsetsSec:          onsetsSec,
		Tempo:              float64(tempo),
		RhythmStrength:     float64(rhythm),
		LoudnessTimesSec:   loudnessTimes,
		LoudnessDBFS:       loudnessDBFS,
		LoudnessPeakDBFS:   loudnessPeak,
		LongTermRMSDBFS:    meanOf(loudnessDBFS),
	}, nil
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
