package modules

import "math"

// RMS returns the root mean square of block. An empty block has RMS 0.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}

// Classify marks block as Silence when its RMS is below threshold.
func Classify(block []float32, threshold float64) Classification {
	if RMS(block) < threshold {
		return Silence
	}
	return Speech
}
