package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// bitsPerSample is fixed: every clip in the harness is 16-bit signed LE PCM.
const bitsPerSample = 16

// ErrInvalidWAV is returned by DecodeWAV for data that is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps raw 16-bit little-endian PCM in a canonical 44-byte
// RIFF/WAV header.
func EncodeWAV(pcm []byte, f Format) []byte {
	channels := max(f.Channels, 1)
	byteRate := f.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	size := len(pcm)

	buf := make([]byte, 44+size)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+size))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(size))
	copy(buf[44:], pcm)
	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload and its
// format. Extra chunks (LIST, fact) are skipped. A data chunk whose declared
// size overruns the buffer is truncated to what is present, which is what a
// recorder killed mid-write leaves behind.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var f Format
	foundFmt := false
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if format := binary.LittleEndian.Uint16(wav[body : body+2]); format != 1 && format != 0xFFFE {
				return nil, Format{}, fmt.Errorf("%w: unsupported encoding %d", ErrInvalidWAV, format)
			}
			if bits := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bits != bitsPerSample {
				return nil, Format{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			end := body + size
			if size < 0 || end > len(wav) || end < body {
				end = len(wav)
			}
			pcm := wav[body:end]
			return pcm[:len(pcm)-len(pcm)%2], f, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// Duration returns the playback length of pcm in format f.
func Duration(pcm []byte, f Format) time.Duration {
	bytesPerSecond := f.SampleRate * max(f.Channels, 1) * bitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSecond)
}
