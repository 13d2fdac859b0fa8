package tracker

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waytrack/waytrack/internal/compositor"
)

var errNoCapture = errors.New("capture unavailable")

// fakeConn scripts the compositor side: each Dispatch call executes the
// next scripted step against the registered handler, and returns an error
// once the script channel is closed.
type fakeConn struct {
	handler    compositor.Handler
	script     chan func(compositor.Handler)
	connectErr error
	captureFn  func(compositor.Handle) (*image.RGBA, error)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		script: make(chan func(compositor.Handler), 16),
		captureFn: func(compositor.Handle) (*image.RGBA, error) {
			return nil, errNoCapture
		},
	}
}

func (f *fakeConn) SetHandler(h compositor.Handler) { f.handler = h }
func (f *fakeConn) Connect() error                  { return f.connectErr }
func (f *fakeConn) Close() error                    { return nil }

func (f *fakeConn) Dispatch() error {
	step, ok := <-f.script
	if !ok {
		return errors.New("connection lost")
	}
	step(f.handler)
	return nil
}

func (f *fakeConn) CaptureToplevel(h compositor.Handle) (*image.RGBA, error) {
	return f.captureFn(h)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubscribeIsExclusive(t *testing.T) {
	tr := New(newFakeConn(), 128)

	_, err := tr.Subscribe()
	require.NoError(t, err)

	_, err = tr.Subscribe()
	assert.ErrorIs(t, err, ErrSubscribed)
}

func TestEventDeliveryOrder(t *testing.T) {
	conn := newFakeConn()
	conn.script <- func(h compositor.Handler) {
		h.ToplevelAdded(compositor.Info{Handle: 1, Title: "Editor"})
	}
	conn.script <- func(h compositor.Handler) {
		h.ToplevelAdded(compositor.Info{Handle: 2, Title: "Terminal"})
	}
	conn.script <- func(h compositor.Handler) {
		h.ToplevelUpdated(compositor.Info{Handle: 1, Title: "Editor — main.go"})
	}
	conn.script <- func(h compositor.Handler) {
		h.ToplevelClosed(2)
	}
	close(conn.script)

	tr := New(conn, 128)
	sub, err := tr.Subscribe()
	require.NoError(t, err)

	ctx := testCtx(t)

	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Init{}, ev)

	want := []Event{
		ToplevelAdd{Info: compositor.Info{Handle: 1, Title: "Editor"}},
		ToplevelAdd{Info: compositor.Info{Handle: 2, Title: "Terminal"}},
		ToplevelUpdate{Info: compositor.Info{Handle: 1, Title: "Editor — main.go"}},
		ToplevelRemove{Handle: 2},
		Finished{},
	}
	for _, w := range want {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, w, ev)
	}
}

func TestFinishedIsTerminal(t *testing.T) {
	conn := newFakeConn()
	close(conn.script)

	tr := New(conn, 128)
	sub, err := tr.Subscribe()
	require.NoError(t, err)

	ctx := testCtx(t)
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Init{}, ev)

	ev, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Finished{}, ev)

	// After Finished the subscription suspends until the context ends.
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sub.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectFailureFinishesStream(t *testing.T) {
	conn := newFakeConn()
	conn.connectErr = errors.New("no compositor")

	tr := New(conn, 128)
	sub, err := tr.Subscribe()
	require.NoError(t, err)

	ctx := testCtx(t)
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Init{}, ev)

	ev, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Finished{}, ev)
}

func TestCaptureFailureEmitsNoImage(t *testing.T) {
	conn := newFakeConn()
	conn.script <- func(h compositor.Handler) {
		h.ToplevelAdded(compositor.Info{Handle: 1, Title: "Editor"})
	}
	close(conn.script)

	tr := New(conn, 128)
	sub, err := tr.Subscribe()
	require.NoError(t, err)

	ctx := testCtx(t)
	for {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		_, isImage := ev.(ImageReady)
		assert.False(t, isImage, "capture failure must not emit ImageReady")
		if _, done := ev.(Finished); done {
			break
		}
	}
}

func TestImageReadyCarriesThumbnail(t *testing.T) {
	cases := []struct {
		name         string
		srcW, srcH   int
		wantW, wantH int
	}{
		{"within bound unresized", 64, 64, 64, 64},
		{"oversized downscaled", 1024, 512, 128, 64},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn()
			conn.captureFn = func(compositor.Handle) (*image.RGBA, error) {
				return image.NewRGBA(image.Rect(0, 0, tc.srcW, tc.srcH)), nil
			}
			conn.script <- func(h compositor.Handler) {
				h.ToplevelAdded(compositor.Info{Handle: 1, Title: "Editor"})
			}
			// Script stays open so the worker keeps dispatching while the
			// capture goroutine delivers its image.

			tr := New(conn, 128)
			sub, err := tr.Subscribe()
			require.NoError(t, err)

			ctx := testCtx(t)
			ev, err := sub.Next(ctx)
			require.NoError(t, err)
			require.Equal(t, Init{}, ev)

			ev, err = sub.Next(ctx)
			require.NoError(t, err)
			require.IsType(t, ToplevelAdd{}, ev)

			ev, err = sub.Next(ctx)
			require.NoError(t, err)
			img, ok := ev.(ImageReady)
			require.True(t, ok, "expected ImageReady, got %T", ev)
			assert.Equal(t, compositor.Handle(1), img.Handle)
			assert.Equal(t, tc.wantW, img.Image.Rect.Dx())
			assert.Equal(t, tc.wantH, img.Image.Rect.Dy())

			close(conn.script)
			ev, err = sub.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, Finished{}, ev)
		})
	}
}
