package wayland

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFormatNegotiation(t *testing.T) {
	sess := newCaptureSession()

	go func() {
		sess.apply(sessionBufferSize{width: 640, height: 480})
		sess.apply(sessionShmFormat{format: formatABGR8888})
		sess.apply(sessionShmFormat{format: 0x34325241})
		sess.apply(sessionDone{})
	}()

	neg, ok := sess.awaitFormats()
	require.True(t, ok)
	assert.Equal(t, uint32(640), neg.width)
	assert.Equal(t, uint32(480), neg.height)
	assert.True(t, neg.supports(formatABGR8888))
	assert.False(t, neg.supports(0))
}

func TestSessionStoppedBeforeNegotiation(t *testing.T) {
	sess := newCaptureSession()

	go sess.apply(sessionStopped{})

	_, ok := sess.awaitFormats()
	assert.False(t, ok)

	result, reason := sess.awaitOutcome()
	assert.Equal(t, outcomeFailed, result)
	assert.Equal(t, uint32(failureStopped), reason)
}

func TestSessionOutcomeIsWriteOnce(t *testing.T) {
	sess := newCaptureSession()

	sess.applyFrame(frameReady{})
	sess.applyFrame(frameFailed{reason: failureUnknown})

	result, _ := sess.awaitOutcome()
	assert.Equal(t, outcomeReady, result)

	sess = newCaptureSession()
	sess.applyFrame(frameFailed{reason: failureBufferConstraints})
	sess.applyFrame(frameReady{})

	result, reason := sess.awaitOutcome()
	assert.Equal(t, outcomeFailed, result)
	assert.Equal(t, uint32(failureBufferConstraints), reason)
}

func TestSessionWaitBlocksUntilSignalled(t *testing.T) {
	sess := newCaptureSession()
	done := make(chan struct{})

	go func() {
		sess.awaitOutcome()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("awaitOutcome returned before any terminal event")
	case <-time.After(20 * time.Millisecond):
	}

	sess.applyFrame(frameReady{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("awaitOutcome did not wake after frameReady")
	}
}
