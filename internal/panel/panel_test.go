package panel

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overture/internal/models"
)

// syncBuffer serializes writes so the test can read the buffer without
// racing the handles under test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandleWritesWholeLines(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	h := coord.Acquire("shared", "build", "cargo build", Policy{Reveal: models.RevealAlways})
	h.Write([]byte("first "))
	h.Write([]byte("part\nsecond line\n"))
	h.Close(false)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[build] first part", lines[0])
	assert.Equal(t, "[build] second line", lines[1])
}

func TestHandleFlushesTrailingPartialLineOnClose(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	h := coord.Acquire("shared", "t", "x", Policy{Reveal: models.RevealAlways})
	h.Write([]byte("no newline"))
	h.Close(false)

	assert.Equal(t, "[t] no newline\n", out.String())
}

func TestConcurrentWritersNeverInterleaveMidLine(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	const lines = 200
	var wg sync.WaitGroup
	for _, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			h := coord.Acquire("shared", name, "x", Policy{Reveal: models.RevealAlways})
			for i := 0; i < lines; i++ {
				// Write in fragments to provoke interleaving bugs.
				h.Write([]byte(name + "-"))
				h.Write([]byte("payload"))
				h.Write([]byte("\n"))
			}
			h.Close(false)
		}(name)
	}
	wg.Wait()

	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, got, 2*lines)
	for _, line := range got {
		ok := line == "[alpha] alpha-payload" || line == "[beta] beta-payload"
		require.True(t, ok, "interleaved line: %q", line)
	}
}

func TestRevealNeverSuppressesOutput(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	h := coord.Acquire("quiet", "t", "x", Policy{Reveal: models.RevealNever})
	h.Write([]byte("hidden\n"))
	h.Close(true)

	assert.Empty(t, out.String())
}

func TestRevealOnFailureBuffersUntilOutcome(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	ok := coord.Acquire("p", "good", "x", Policy{Reveal: models.RevealOnFailure})
	ok.Write([]byte("all fine\n"))
	ok.Close(false)
	assert.Empty(t, out.String(), "successful task output stays hidden")

	bad := coord.Acquire("p", "bad", "x", Policy{Reveal: models.RevealOnFailure})
	bad.Write([]byte("boom line 1\nboom line 2\n"))
	bad.Close(true)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[bad] boom line 1", lines[0])
	assert.Equal(t, "[bad] boom line 2", lines[1])
}

func TestEchoWritesCommandLine(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	h := coord.Acquire("p", "build", "cargo build --release", Policy{
		Echo:   true,
		Reveal: models.RevealAlways,
	})
	h.Close(false)

	assert.Equal(t, "[build] > cargo build --release\n", out.String())
}

func TestFirstWriterClaimsClear(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	// Simulate a previous run so reuse messages can fire.
	warm := coord.Acquire("p", "warm", "x", Policy{Reveal: models.RevealAlways})
	warm.Write([]byte("earlier\n"))
	warm.Close(false)
	coord.Reset()

	first := coord.Acquire("p", "a", "x", Policy{Clear: true, ShowReuseMessage: true, Reveal: models.RevealAlways})
	second := coord.Acquire("p", "b", "x", Policy{Clear: true, ShowReuseMessage: true, Reveal: models.RevealAlways})
	first.Close(false)
	second.Close(false)

	got := out.String()
	assert.Contains(t, got, "previous output cleared")
	// Only the first clear-requesting writer announces the clear.
	assert.Equal(t, 1, strings.Count(got, "previous output cleared"))
	assert.Contains(t, got, "[b] panel p reused by b")
}

func TestCloseIsIdempotent(t *testing.T) {
	out := &syncBuffer{}
	coord := NewCoordinator(out)

	h := coord.Acquire("p", "t", "x", Policy{Reveal: models.RevealAlways})
	h.Write([]byte("once\n"))
	h.Close(false)
	h.Close(false)

	assert.Equal(t, "[t] once\n", out.String())
}
