package transcript_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/MrWong99/voxscribe/internal/transcript"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "collapse and period", raw: "a  b . c", want: "a b. c"},
		{name: "fragment separators", raw: "Hello. World. ", want: "Hello. World."},
		{name: "long space run", raw: "one     two", want: "one two"},
		{name: "space run before period", raw: "end   .", want: "end."},
		{name: "markers", raw: "[Unintelligible] [Low Confidence] Yes. ", want: "[Unintelligible] [Low Confidence] Yes."},
		{name: "leading and trailing", raw: "  padded  ", want: "padded"},
		{name: "empty", raw: "", want: ""},
		{name: "only spaces", raw: "    ", want: ""},
		{name: "unicode", raw: "Grüße  aus Köln .", want: "Grüße aus Köln."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := transcript.Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	alphabet := []string{" ", " ", ".", "a", "b", "[", "]", "\t"}
	rng := rand.New(rand.NewPCG(7, 11))
	for range 500 {
		var b strings.Builder
		for range rng.IntN(24) {
			b.WriteString(alphabet[rng.IntN(len(alphabet))])
		}
		once := transcript.Normalize(b.String())
		if twice := transcript.Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", b.String(), once, twice)
		}
		if strings.Contains(once, "  ") || strings.Contains(once, " .") {
			t.Fatalf("Normalize(%q) = %q still has a space run or a space before a period", b.String(), once)
		}
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	got := transcript.Join([]string{"Hello world. ", "", "[Low Confidence] ", "Bye. "})
	if want := "Hello world. [Low Confidence] Bye."; got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
	if got := transcript.Join(nil); got != "" {
		t.Errorf("Join(nil) = %q, want empty", got)
	}
}
