package recorder

import "encoding/binary"

// encodeWAV wraps raw little-endian 16-bit PCM in a RIFF/WAVE header so
// the payload is playable on its own.
func encodeWAV(pcm []byte, sampleRate int, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 0, 44+len(pcm))
	out = append(out, "RIFF"...)
	out = appendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = appendUint32(out, 16)
	out = appendUint16(out, 1) // PCM
	out = appendUint16(out, uint16(channels))
	out = appendUint32(out, uint32(sampleRate))
	out = appendUint32(out, uint32(byteRate))
	out = appendUint16(out, uint16(blockAlign))
	out = appendUint16(out, bitsPerSample)

	out = append(out, "data"...)
	out = appendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}
