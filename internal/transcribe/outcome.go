package transcribe

// Outcome classifies how the recognition of one chunk ended.
type Outcome int

const (
	// OutcomeRecognized means the best alternative was confident enough, or
	// the recognizer does not report confidence.
	OutcomeRecognized Outcome = iota

	// OutcomeLowConfidence means the best alternative scored at or below the
	// confidence threshold.
	OutcomeLowConfidence

	// OutcomeUnintelligible means the recognizer answered without any usable
	// alternative.
	OutcomeUnintelligible

	// OutcomeNoSpeech means the recognizer reported that the chunk holds no
	// speech.
	OutcomeNoSpeech

	// OutcomeServiceError means the recognition service failed, timed out or
	// was skipped by an open circuit breaker.
	OutcomeServiceError

	// OutcomeFailed means the chunk could not be processed for any other
	// reason, including a recovered panic.
	OutcomeFailed
)

// String returns the snake_case name used in logs, metrics and API responses.
func (o Outcome) String() string {
	switch o {
	case OutcomeRecognized:
		return "recognized"
	case OutcomeLowConfidence:
		return "low_confidence"
	case OutcomeUnintelligible:
		return "unintelligible"
	case OutcomeNoSpeech:
		return "no_speech"
	case OutcomeServiceError:
		return "service_error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
