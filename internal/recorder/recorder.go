package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"agrivoice/internal/domain"
	"agrivoice/internal/ports"
)

// Config controls voice capture behavior.
type Config struct {
	Audio        ports.AudioConfig
	TickInterval time.Duration
	ChunkSize    int
}

// Result is a finalized capture whose preview handle ownership moves
// with the value.
type Result struct {
	Payload domain.AudioPayload
	Preview string
	Seconds int
}

// Recorder governs the voice capture state machine:
// idle -> recording -> {stopped | idle}. Transition calls that do not
// apply to the current state are idempotent no-ops.
type Recorder struct {
	capture  ports.AudioCapture
	previews ports.PreviewStore
	events   ports.EventSink
	cfg      Config

	// Transition methods are serialized by the owning controller; the
	// tick and reader goroutines hand results back through done
	// channels. elapsed is the one field the tick goroutine writes
	// while callers may read.
	state   domain.RecordingState
	elapsed atomic.Int64
	current *activeCapture
	result  *Result
}

type activeCapture struct {
	cancel     context.CancelFunc
	session    ports.AudioSession
	buf        bytes.Buffer
	readerDone chan struct{}
	tickStop   chan struct{}
	tickDone   chan struct{}
}

func New(capture ports.AudioCapture, previews ports.PreviewStore, events ports.EventSink, cfg Config) *Recorder {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	return &Recorder{
		capture:  capture,
		previews: previews,
		events:   events,
		cfg:      cfg,
		state:    domain.RecordingStateIdle,
	}
}

// Start acquires the microphone and begins buffering audio. Valid only
// from idle; from any other state it is a no-op. On acquisition failure
// the machine stays idle and the failure is returned to the caller.
func (r *Recorder) Start(ctx context.Context) error {
	if r.state != domain.RecordingStateIdle {
		return nil
	}

	captureCtx, cancel := context.WithCancel(ctx)
	session, err := r.capture.Start(captureCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		return fmt.Errorf("could not start recording: %w", err)
	}

	active := &activeCapture{
		cancel:     cancel,
		session:    session,
		readerDone: make(chan struct{}),
		tickStop:   make(chan struct{}),
		tickDone:   make(chan struct{}),
	}
	r.current = active
	r.state = domain.RecordingStateRecording
	r.elapsed.Store(0)

	go r.readChunks(active)
	go r.tick(active)

	r.events.RecordingStateChanged(domain.RecordingStateRecording, domain.RecordingReasonStarted)
	return nil
}

// Stop finalizes the buffered capture into a single payload with a
// playable preview. Valid only while recording; otherwise a no-op.
func (r *Recorder) Stop() error {
	if r.state != domain.RecordingStateRecording || r.current == nil {
		return nil
	}

	active := r.current
	close(active.tickStop)
	<-active.tickDone

	stopErr := active.session.Stop()
	<-active.readerDone
	active.cancel()

	pcm := active.buf.Bytes()
	r.current = nil

	if len(pcm) == 0 {
		r.state = domain.RecordingStateIdle
		r.elapsed.Store(0)
		r.events.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonCancelled)
		if stopErr != nil {
			return fmt.Errorf("capture stopped uncleanly: %w", stopErr)
		}
		return errors.New("no audio captured")
	}

	wav := encodeWAV(pcm, r.cfg.Audio.SampleRate, r.cfg.Audio.Channels)
	r.result = &Result{
		Payload: domain.AudioPayload{
			Data:     wav,
			MIMEType: "audio/wav",
			Filename: "recording.wav",
		},
		Preview: r.previews.Put(wav, "audio/wav"),
		Seconds: int(r.elapsed.Load()),
	}
	r.state = domain.RecordingStateStopped
	r.events.RecordingStateChanged(domain.RecordingStateStopped, domain.RecordingReasonStopped)
	return nil
}

// Cancel discards any in-progress or finalized capture, releases its
// preview handle, and resets elapsed time. No-op when already idle.
func (r *Recorder) Cancel() {
	switch r.state {
	case domain.RecordingStateRecording:
		active := r.current
		close(active.tickStop)
		<-active.tickDone
		_ = active.session.Stop()
		<-active.readerDone
		active.cancel()
		r.current = nil
	case domain.RecordingStateStopped:
		if r.result != nil {
			r.previews.Release(r.result.Preview)
		}
	default:
		return
	}

	r.result = nil
	r.elapsed.Store(0)
	r.state = domain.RecordingStateIdle
	r.events.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonCancelled)
}

// TakeResult transfers ownership of a finalized capture to the caller
// and returns the machine to idle. The preview handle moves with the
// result and is not released here. Returns nil unless stopped.
func (r *Recorder) TakeResult() *Result {
	if r.state != domain.RecordingStateStopped || r.result == nil {
		return nil
	}
	result := r.result
	r.result = nil
	r.elapsed.Store(0)
	r.state = domain.RecordingStateIdle
	r.events.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonSubmitted)
	return result
}

// State returns the current lifecycle state.
func (r *Recorder) State() domain.RecordingState {
	return r.state
}

// Elapsed returns the elapsed recording time in seconds.
func (r *Recorder) Elapsed() int {
	return int(r.elapsed.Load())
}

// HasResult reports whether a finalized capture is waiting.
func (r *Recorder) HasResult() bool {
	return r.result != nil
}

func (r *Recorder) readChunks(active *activeCapture) {
	defer close(active.readerDone)

	buf := make([]byte, r.cfg.ChunkSize)
	for {
		n, err := active.session.Read(buf)
		if n > 0 {
			active.buf.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.events.SessionError(domain.ErrorCodeRecording, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

func (r *Recorder) tick(active *activeCapture) {
	defer close(active.tickDone)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	seconds := 0
	for {
		select {
		case <-ticker.C:
			seconds++
			r.elapsed.Store(int64(seconds))
			r.events.RecordingTick(seconds, FormatElapsed(seconds))
		case <-active.tickStop:
			return
		}
	}
}

// FormatElapsed renders seconds as minutes:seconds with the seconds
// zero-padded to two digits, e.g. 65 -> "1:05".
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
