package segment

import (
	"fmt"
	"iter"
)

// Strategy selects how consecutive speech frames become segments.
type Strategy int

const (
	// StrategyFrame emits every speech frame as its own segment.
	StrategyFrame Strategy = iota

	// StrategyRun merges each maximal run of consecutive speech frames into
	// one segment.
	StrategyRun
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyFrame:
		return "frame"
	case StrategyRun:
		return "run"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "frame":
		return StrategyFrame, nil
	case "run":
		return StrategyRun, nil
	default:
		return 0, fmt.Errorf("segment: unknown strategy %q (want frame or run)", name)
	}
}

// Segment is a contiguous span of speech audio.
type Segment struct {
	// Index is the segment's position among the segments of its stream.
	Index int

	// FirstFrame and LastFrame are the indices of the first and last frame
	// that make up the segment.
	FirstFrame int
	LastFrame  int

	// Frames lists the source frame indices in order.
	Frames []int

	// Data is the concatenated audio of the segment's frames. It never
	// aliases the input stream.
	Data []byte
}

// Assemble groups speech verdicts into segments according to strategy.
// Non-speech and failed frames never contribute audio. Under [StrategyRun] a
// run that is still open when the verdicts end is flushed as the last segment.
func Assemble(verdicts iter.Seq[Verdict], strategy Strategy) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		var (
			cur    *Segment
			nextID int
		)
		emit := func() bool {
			s := *cur
			cur = nil
			nextID++
			return yield(s)
		}

		for v := range verdicts {
			if !v.Speech {
				// InSpeech -> Idle closes the open run.
				if cur != nil && !emit() {
					return
				}
				continue
			}

			if cur == nil {
				// Idle -> InSpeech opens a segment.
				cur = &Segment{Index: nextID, FirstFrame: v.Frame.Index}
			}
			cur.LastFrame = v.Frame.Index
			cur.Frames = append(cur.Frames, v.Frame.Index)
			cur.Data = append(cur.Data, v.Frame.Data...)

			if strategy == StrategyFrame && !emit() {
				return
			}
		}

		if cur != nil {
			emit()
		}
	}
}
