package timeline

import "math"

// TargetWindow returns the usable audio duration for a video: the video length
// minus the safety margin, never below zero.
func TargetWindow(videoDuration, margin float64) float64 {
	return math.Max(videoDuration-margin, 0)
}

// SpeedFactor returns the playback rate needed to fit rawDuration into target,
// capped at maxSpeedup. A zero target cannot be reached by any finite rate, so
// it yields maxSpeedup. The result is never below 1.0.
func SpeedFactor(rawDuration, target, maxSpeedup float64) float64 {
	if target <= 0 {
		return math.Max(maxSpeedup, 1.0)
	}
	factor := math.Min(rawDuration/target, maxSpeedup)
	if math.IsNaN(factor) || factor < 1.0 {
		return 1.0
	}
	return factor
}

// SlideshowDuration is the length of a video that shows each image for
// secondsPerImage seconds.
func SlideshowDuration(imageCount int, secondsPerImage float64) float64 {
	if imageCount <= 0 || secondsPerImage <= 0 {
		return 0
	}
	return float64(imageCount) * secondsPerImage
}
