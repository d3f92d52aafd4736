package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
)

const (
	// PollInterval is how long the worker waits for work before rechecking
	// whether it should shut down.
	PollInterval = time.Second

	// speakTimeout bounds one utterance so a wedged engine process cannot
	// stall the queue forever.
	speakTimeout = 60 * time.Second
)

// Worker owns the goroutine that drains the queue. There is exactly one,
// which is what keeps announcements in submission order.
type Worker struct {
	queue  *Queue
	engine Engine
	events *eventlog.Logger
	wg     sync.WaitGroup
}

// NewWorker wires a queue to an engine. events may be nil.
func NewWorker(queue *Queue, engine Engine, events *eventlog.Logger) *Worker {
	return &Worker{queue: queue, engine: engine, events: events}
}

// Start launches the delivery goroutine. It runs until ctx is cancelled;
// utterances still queued at that point are discarded.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the delivery goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		text, ok := w.queue.Dequeue(PollInterval)
		if !ok {
			continue
		}
		w.speak(ctx, text)
	}
}

func (w *Worker) speak(ctx context.Context, text string) {
	if !w.engine.Available() {
		slog.Warn("speech engine unavailable, dropping announcement",
			"engine", w.engine.Name(), "text", text)
		w.logEvent(eventlog.SpeechDropped, text, "engine unavailable")
		return
	}

	speakCtx, cancel := context.WithTimeout(ctx, speakTimeout)
	defer cancel()

	slog.Info("speaking announcement", "engine", w.engine.Name(), "text", text)
	if err := w.engine.Speak(speakCtx, text); err != nil {
		slog.Warn("speech delivery failed", "engine", w.engine.Name(), "error", err)
		w.logEvent(eventlog.SpeechDropped, text, err.Error())
		return
	}
	w.logEvent(eventlog.SpeechSpoken, text, "")
}

func (w *Worker) logEvent(eventType eventlog.EventType, text, errMsg string) {
	if w.events == nil {
		return
	}
	if err := w.events.LogSpeech(eventType, text, w.engine.Name(), errMsg, w.queue.Pending()); err != nil {
		slog.Warn("failed to write speech event", "error", err)
	}
}
