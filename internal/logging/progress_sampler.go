package logging

import "strings"

// ProgressSampler thins out polling progress logs. A line is worth emitting
// when the phase changes or the percentage enters a new bucket.
type ProgressSampler struct {
	bucket     float64
	lastPhase  string
	lastBucket int
}

// NewProgressSampler returns a sampler with the given bucket width in
// percent. Non-positive widths fall back to 10.
func NewProgressSampler(bucket float64) *ProgressSampler {
	if bucket <= 0 {
		bucket = 10
	}
	return &ProgressSampler{bucket: bucket, lastBucket: -1}
}

// ShouldLog reports whether percent in phase is new information. Negative
// percent means unknown and only phase changes count.
func (s *ProgressSampler) ShouldLog(percent float64, phase string) bool {
	if s == nil {
		return true
	}
	emit := false
	if phase = strings.TrimSpace(phase); phase != "" && phase != s.lastPhase {
		s.lastPhase = phase
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	if percent > 100 {
		percent = 100
	}
	if b := int(percent / s.bucket); b > s.lastBucket {
		s.lastBucket = b
		emit = true
	}
	return emit
}
