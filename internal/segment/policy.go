package segment

import (
	"fmt"
	"time"

	"github.com/MrWong99/voxscribe/pkg/audio"
)

// Policy names a preset combination of assembly strategy and aggregation
// thresholds.
type Policy string

const (
	// PolicyBytes emits every speech frame as a segment and batches them
	// purely by size.
	PolicyBytes Policy = "bytes"

	// PolicyUtterance merges speech runs into utterances, drops utterances
	// shorter than [DefaultMinUtterance] and sends each survivor on its own.
	PolicyUtterance Policy = "utterance"
)

const (
	// DefaultMinChunkBytes is the [PolicyBytes] chunk threshold, about 0.1 s
	// of 16 kHz mono audio.
	DefaultMinChunkBytes = 3200

	// DefaultMinUtterance is the [PolicyUtterance] minimum segment duration.
	DefaultMinUtterance = 500 * time.Millisecond
)

// Plan is the resolved assembly and aggregation setup for one stream.
type Plan struct {
	Strategy  Strategy
	Aggregate AggregateConfig
}

// Overrides replaces individual values of a policy preset. Nil fields keep
// the preset value.
type Overrides struct {
	Strategy           *Strategy
	MinChunkBytes      *int
	MinSegmentDuration *time.Duration
}

// Resolve returns the plan for policy at sampleRate with overrides applied.
func Resolve(policy Policy, sampleRate int, o Overrides) (Plan, error) {
	if sampleRate <= 0 {
		return Plan{}, fmt.Errorf("segment: sample rate must be positive, got %d", sampleRate)
	}

	var (
		p      Plan
		minDur time.Duration
	)
	switch policy {
	case PolicyBytes, "":
		p = Plan{Strategy: StrategyFrame, Aggregate: AggregateConfig{MinChunkBytes: DefaultMinChunkBytes}}
	case PolicyUtterance:
		p = Plan{Strategy: StrategyRun}
		minDur = DefaultMinUtterance
	default:
		return Plan{}, fmt.Errorf("segment: unknown policy %q (want bytes or utterance)", policy)
	}

	if o.Strategy != nil {
		p.Strategy = *o.Strategy
	}
	if o.MinChunkBytes != nil {
		if *o.MinChunkBytes < 0 {
			return Plan{}, fmt.Errorf("segment: min chunk bytes must not be negative, got %d", *o.MinChunkBytes)
		}
		p.Aggregate.MinChunkBytes = *o.MinChunkBytes
	}
	if o.MinSegmentDuration != nil {
		if *o.MinSegmentDuration < 0 {
			return Plan{}, fmt.Errorf("segment: min segment duration must not be negative, got %s", *o.MinSegmentDuration)
		}
		minDur = *o.MinSegmentDuration
	}
	p.Aggregate.MinSegmentBytes = audio.DurationBytes(minDur, audio.Format{SampleRate: sampleRate, Channels: 1})
	return p, nil
}
