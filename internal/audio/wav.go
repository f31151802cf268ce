package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	wavHeaderSize  = 44
	bitsPerSample  = 16
	audioFormatPCM = 1
)

// ErrInvalidWAV is returned for data that is not 16-bit PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV data")

// EncodeWAV wraps 16-bit samples in a canonical RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if channels <= 0 || channels > 2 {
		return nil, fmt.Errorf("only mono (1) or stereo (2) channels supported, got %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(samples) * 2

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt sub-chunk
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	// data sub-chunk
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(SamplesToBytes(samples))

	return buf.Bytes(), nil
}

// DecodeWAV extracts samples, sample rate and channel count from a 16-bit
// PCM WAV file. Unknown chunks are skipped.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		sampleRate int
		channels   int
		haveFormat bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != audioFormatPCM || bits != bitsPerSample {
				return nil, 0, 0, fmt.Errorf("%w: unsupported format %d with %d bits", ErrInvalidWAV, format, bits)
			}
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, 0, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			samples, err := BytesToSamples(data[body : body+size-size%2])
			if err != nil {
				return nil, 0, 0, err
			}
			return samples, sampleRate, channels, nil
		}

		// chunks are padded to even sizes
		pos = body + size + size%2
	}

	return nil, 0, 0, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// WriteWAVFile encodes samples and writes them to path.
func WriteWAVFile(path string, samples []int16, sampleRate, channels int) ([]byte, error) {
	data, err := EncodeWAV(samples, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return data, nil
}

// ReadWAVFile reads and decodes a WAV file.
func ReadWAVFile(path string) ([]int16, int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeWAV(data)
}
