// Package notify gives local feedback next to the host: a chime when the
// listener changes mode and desktop notifications for saved dictations.
package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"dictation/internal/dictation"
)

// Earcon plays an mp3 chime whenever the listener mode changes, i.e. when
// dictation starts and when it ends.
type Earcon struct {
	dictation.NopHost

	path string

	once    sync.Once
	initErr error
	mu      sync.Mutex
}

func NewEarcon(path string) *Earcon {
	return &Earcon{path: path}
}

func (e *Earcon) SetInputMode(ctx context.Context, _ string, _ dictation.InputMode) error {
	return e.Play(ctx)
}

// Play blocks until the chime finished or ctx is done.
func (e *Earcon) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("open earcon: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode earcon %s: %w", e.path, err)
	}
	defer streamer.Close()

	e.once.Do(func() {
		e.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if e.initErr != nil {
		return fmt.Errorf("init speaker: %w", e.initErr)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
