package audio

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps mono 16-bit PCM samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer

	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, int16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// trimSilence drops leading and trailing frames whose peak stays under
// threshold.
func trimSilence(samples []int16, threshold int16, frame int) []int16 {
	frame = max(frame, 1)
	loud := func(chunk []int16) bool {
		for _, s := range chunk {
			if s > threshold || s < -threshold {
				return true
			}
		}
		return false
	}

	start := 0
	for start < len(samples) {
		end := min(start+frame, len(samples))
		if loud(samples[start:end]) {
			break
		}
		start = end
	}

	stop := len(samples)
	for stop > start {
		begin := max(stop-frame, start)
		if loud(samples[begin:stop]) {
			break
		}
		stop = begin
	}

	return samples[start:stop]
}
