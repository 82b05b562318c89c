package audio

import (
	"math"
	"time"
)

// VADConfig holds configuration for end-of-speech detection on live input
type VADConfig struct {
	EnergyThreshold float64       // RMS energy below which a chunk counts as silence
	Hangover        time.Duration // Silence after speech that ends the utterance
	SampleRate      int           // Sample rate of the 16-bit PCM being observed
}

// DefaultVADConfig returns a default VAD configuration for the given rate
func DefaultVADConfig(sampleRate int) VADConfig {
	return VADConfig{
		EnergyThreshold: 500.0,
		Hangover:        2 * time.Second,
		SampleRate:      sampleRate,
	}
}

// VADDetector tracks speech and trailing silence over consecutive PCM chunks.
// It is not safe for concurrent use.
type VADDetector struct {
	config      VADConfig
	silence     time.Duration
	heardSpeech bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config VADConfig) *VADDetector {
	return &VADDetector{config: config}
}

// Observe feeds one chunk of 16-bit little-endian PCM and reports whether
// the hangover has elapsed since the last speech. Silence before any speech
// never ends the utterance.
func (v *VADDetector) Observe(pcm []byte) bool {
	samples, err := bytesToSamples(pcm)
	if err != nil {
		return false
	}

	if CalculateRMS(samples) >= v.config.EnergyThreshold {
		v.heardSpeech = true
		v.silence = 0
		return false
	}
	if !v.heardSpeech {
		return false
	}
	v.silence += ChunkInterval(len(pcm), v.config.SampleRate)
	return v.silence >= v.config.Hangover
}

// Reset clears speech state
func (v *VADDetector) Reset() {
	v.silence = 0
	v.heardSpeech = false
}

// HeardSpeech reports whether any chunk so far was above the threshold
func (v *VADDetector) HeardSpeech() bool {
	return v.heardSpeech
}

// CalculateRMS calculates the root mean square of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
