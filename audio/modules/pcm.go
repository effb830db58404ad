package modules

import (
	"bytes"
	"encoding/binary"
)

// Float32ToPCM16 converts [-1, 1] samples to signed 16-bit, clipping
// anything out of range.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s >= 1:
			out[i] = 32767
		case s <= -1:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// PCM16Bytes encodes samples as little-endian bytes.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 decodes little-endian 16-bit samples. A trailing odd byte is
// dropped.
func BytesToPCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// buildWAV wraps mono 16-bit PCM in a minimal RIFF header.
func buildWAV(pcm []byte, sampleRate int) []byte {
	const channels, bitsPerSample = 1, 16
	dataLen := uint32(len(pcm))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// stripWAVHeader returns the payload of a RIFF/WAVE "data" chunk, or b
// unchanged when it is not a WAV container.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return b
	}
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if id == "data" {
			end := off + size
			if end > len(b) {
				end = len(b)
			}
			return b[off:end]
		}
		off += size + size%2
	}
	return nil
}

// chunkPCM splits samples into pieces of at most n samples.
func chunkPCM(samples []int16, n int) [][]int16 {
	if n <= 0 {
		n = len(samples)
	}
	var out [][]int16
	for len(samples) > 0 {
		k := min(n, len(samples))
		out = append(out, samples[:k])
		samples = samples[k:]
	}
	return out
}
