package audio

import (
	"fmt"
	"time"
)

// Encoding names an input audio format accepted by the CLI
type Encoding string

const (
	EncodingPCM   Encoding = "pcm"
	EncodingMulaw Encoding = "mulaw"
)

// ParseEncoding validates an encoding name
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingPCM, EncodingMulaw:
		return Encoding(s), nil
	default:
		return "", fmt.Errorf("unsupported audio encoding %q (want pcm or mulaw)", s)
	}
}

// ToPCM converts data in the given encoding to 16-bit little-endian PCM.
// The service only accepts PCM, so μ-law input is expanded here.
func ToPCM(enc Encoding, data []byte) ([]byte, error) {
	switch enc {
	case EncodingPCM:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
		}
		return data, nil
	case EncodingMulaw:
		return ConvertPCMUToPCM(data)
	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", enc)
	}
}

// ConvertPCMUToPCM converts G.711 PCMU (μ-law) to 16-bit little-endian PCM
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}

	pcmData := make([]byte, len(pcmuData)*2)
	for i, mulawByte := range pcmuData {
		sample := mulawToLinear(mulawByte)
		pcmData[i*2] = byte(sample)
		pcmData[i*2+1] = byte(sample >> 8)
	}
	return pcmData, nil
}

// ConvertPCMToPCMU converts 16-bit little-endian PCM to G.711 PCMU
func ConvertPCMToPCMU(pcmData []byte) ([]byte, error) {
	samples, err := bytesToSamples(pcmData)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToMulaw(s)
	}
	return out, nil
}

// Resample converts 16-bit little-endian PCM between sample rates
func Resample(pcmData []byte, inputRate, outputRate int) ([]byte, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inputRate, outputRate)
	}
	if inputRate == outputRate {
		return pcmData, nil
	}
	samples, err := bytesToSamples(pcmData)
	if err != nil {
		return nil, err
	}
	return samplesToBytes(resample(samples, inputRate, outputRate)), nil
}

// ChunkInterval is how long chunkBytes of 16-bit mono PCM lasts at
// sampleRate. Used to pace file playback at real time.
func ChunkInterval(chunkBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := chunkBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

func bytesToSamples(pcmData []byte) ([]int16, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples, nil
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// resample performs linear interpolation resampling
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}
	return output
}

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// linearToMulaw encodes a 16-bit sample as G.711 μ-law
func linearToMulaw(sample int16) byte {
	magnitude := int32(sample)
	var sign byte
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	if magnitude > mulawClip {
		magnitude = mulawClip
	}
	magnitude += mulawBias

	// Segment is the position of the highest set bit above bit 7
	segment := byte(7)
	for mask := int32(0x4000); magnitude&mask == 0 && segment > 0; mask >>= 1 {
		segment--
	}
	mantissa := byte(magnitude>>(segment+3)) & 0x0F
	return ^(sign | segment<<4 | mantissa)
}

// mulawToLinear decodes an 8-bit μ-law sample to 16-bit linear PCM
func mulawToLinear(mulawByte byte) int16 {
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := (mulawByte >> 4) & 0x07
	mantissa := int32(mulawByte & 0x0F)

	magnitude := ((mantissa << 3) + mulawBias) << segment
	magnitude -= mulawBias
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
