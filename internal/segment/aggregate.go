package segment

import "iter"

// AggregateConfig controls how segments are batched into chunks.
type AggregateConfig struct {
	// MinChunkBytes is the size a chunk must reach before it is emitted.
	// Zero emits every surviving segment as its own chunk.
	MinChunkBytes int

	// MinSegmentBytes discards segments shorter than this before they are
	// buffered. Zero keeps every segment.
	MinSegmentBytes int
}

// Chunk is a batch of segment audio handed to a recognizer in one call.
type Chunk struct {
	Index int
	Data  []byte

	// Segments is the number of segments merged into the chunk.
	Segments int

	// FirstFrame and LastFrame bound the source frames covered by the chunk.
	FirstFrame int
	LastFrame  int
}

// Aggregate buffers segment audio and emits a chunk each time the buffer
// reaches cfg.MinChunkBytes. A non-empty remainder is flushed as a final,
// possibly shorter chunk. Chunk order follows segment order and the chunks'
// bytes concatenate to exactly the bytes of the segments that passed the
// length filter.
func Aggregate(segments iter.Seq[Segment], cfg AggregateConfig) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		var (
			cur    Chunk
			nextID int
		)
		emit := func() bool {
			c := cur
			c.Index = nextID
			nextID++
			cur = Chunk{}
			return yield(c)
		}

		for s := range segments {
			if len(s.Data) < cfg.MinSegmentBytes {
				continue
			}
			if cur.Segments == 0 {
				cur.FirstFrame = s.FirstFrame
			}
			cur.LastFrame = s.LastFrame
			cur.Data = append(cur.Data, s.Data...)
			cur.Segments++

			if len(cur.Data) >= cfg.MinChunkBytes && !emit() {
				return
			}
		}

		if len(cur.Data) > 0 {
			emit()
		}
	}
}
