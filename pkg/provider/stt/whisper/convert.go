package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavAudio is the decoded payload of a RIFF/WAVE file: raw 16-bit PCM plus
// the format fields needed for down-mixing.
type wavAudio struct {
	sampleRate int
	channels   int
	pcm        []byte
}

// errNotWAV reports input that does not start with a RIFF/WAVE header.
var errNotWAV = errors.New("whisper: not a RIFF/WAVE file")

// parseWAV decodes a canonical RIFF/WAVE container holding 16-bit signed
// little-endian PCM. Chunks other than fmt and data are skipped. Compressed
// or float encodings are rejected; the hardware bridge records plain PCM.
func parseWAV(data []byte) (wavAudio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavAudio{}, errNotWAV
	}

	var (
		audio     wavAudio
		haveFmt   bool
		haveData  bool
		bitsDepth int
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return wavAudio{}, fmt.Errorf("whisper: truncated %q chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavAudio{}, errors.New("whisper: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return wavAudio{}, fmt.Errorf("whisper: unsupported WAV format code %d", format)
			}
			audio.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			audio.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			audio.pcm = data[body : body+chunkSize]
			haveData = true
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	if !haveFmt || !haveData {
		return wavAudio{}, errors.New("whisper: missing fmt or data chunk")
	}
	if bitsDepth != 16 {
		return wavAudio{}, fmt.Errorf("whisper: unsupported bit depth %d", bitsDepth)
	}
	if audio.channels <= 0 || audio.sampleRate <= 0 {
		return wavAudio{}, errors.New("whisper: invalid fmt chunk values")
	}
	return audio, nil
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame. If channels is 1 this is equivalent to
// pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
