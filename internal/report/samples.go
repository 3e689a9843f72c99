package report

// MalformedSample records a numeric marker line whose token did not parse.
// The offending line can be found without grepping the artifact.
type MalformedSample struct {
	LineNo int         `json:"line_no" yaml:"line_no"`
	Class  MarkerClass `json:"class" yaml:"class"`
	Token  string      `json:"token" yaml:"token"`
}

// maxMalformedSamples bounds the samples kept per report
const maxMalformedSamples = 20

// malformedRing is a ring buffer of the last N malformed samples
type malformedRing struct {
	samples []MalformedSample
	maxSize int
}

func newMalformedRing(maxSize int) *malformedRing {
	return &malformedRing{
		samples: make([]MalformedSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds a sample, dropping the oldest when full
func (l *malformedRing) Record(s MalformedSample) {
	if len(l.samples) >= l.maxSize {
		l.samples = l.samples[1:]
	}
	l.samples = append(l.samples, s)
}

// Recent returns samples oldest first, or nil when empty
func (l *malformedRing) Recent() []MalformedSample {
	if len(l.samples) == 0 {
		return nil
	}
	out := make([]MalformedSample, len(l.samples))
	copy(out, l.samples)
	return out
}
