// Package screen holds the per-feature controllers that sit between a
// front-end and the AI service gateway. Each controller owns its view state,
// its session identity and the cancellation of its in-flight calls.
package screen

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ai-playground/internal/domain"
	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/repository"
	"ai-playground/internal/session"
)

// Gateway is the subset of the AI service client used by screens.
type Gateway interface {
	AskText(ctx context.Context, query, sessionID string) (aiservice.AskResult, error)
	GenerateImage(ctx context.Context, prompt string) (aiservice.ImageResult, error)
	GenerateStory(ctx context.Context, topic, sessionID string) (aiservice.StoryResult, error)
	TranscribeAudio(ctx context.Context, file aiservice.AudioFile, sessionID string) (aiservice.TranscriptResult, error)
	MultimodalTask(ctx context.Context, payload domain.RequestEnvelope) (aiservice.MultimodalResult, error)
}

// State is the view state shared by every screen.
type State struct {
	Input   string
	Output  string
	Error   string // inline validation message
	Loading bool
}

// ToastKind is the style of a transient notification.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is a transient notification produced by a call.
type Toast struct {
	Kind  ToastKind
	Title string
	Text  string
}

// Deps are the collaborators shared by all screens.
type Deps struct {
	Gateway  Gateway
	Recorder repository.Recorder // optional
	Logger   *slog.Logger        // optional
}

// base implements mount/unmount, per-call cancellation and guarded state
// updates. Results arriving after Unmount are dropped.
type base struct {
	feature  domain.Feature
	gw       Gateway
	rec      repository.Recorder
	logger   *slog.Logger
	identity session.Identity

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	mounted   bool
	unmounted bool
	releasers []func()
}

func (b *base) init(feature domain.Feature, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b.feature = feature
	b.gw = d.Gateway
	b.rec = d.Recorder
	b.logger = logger.With("screen", string(feature))
}

// Mount generates the session identifier and starts the screen lifetime.
// Calling Mount twice has no further effect.
func (b *base) Mount() session.ID {
	b.mu.Lock()
	if !b.mounted && !b.unmounted {
		b.ctx, b.cancel = context.WithCancel(context.Background())
		b.mounted = true
	}
	b.mu.Unlock()
	return b.identity.Generate()
}

// Unmount cancels in-flight calls, releases held resources and freezes state.
func (b *base) Unmount() {
	b.mu.Lock()
	if b.unmounted {
		b.mu.Unlock()
		return
	}
	b.unmounted = true
	cancel := b.cancel
	releasers := b.releasers
	b.releasers = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, release := range releasers {
		release()
	}
}

// SessionID returns the identifier generated at mount, or "" before.
func (b *base) SessionID() session.ID {
	return b.identity.ID()
}

// Alive reports whether the screen is mounted and not yet unmounted.
func (b *base) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mounted && !b.unmounted
}

// begin derives a call context that ends with either the caller's context or
// the screen's lifetime.
func (b *base) begin(ctx context.Context) (context.Context, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mounted || b.unmounted || b.identity.ID().Empty() {
		return nil, nil, newError(ErrorInternal, "screen_not_mounted", nil)
	}
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}, nil
}

// commit applies fn under the state lock unless the screen is gone.
func (b *base) commit(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unmounted {
		return false
	}
	fn()
	return true
}

// hold registers a release function run once on Unmount. It reports false,
// without registering, when the screen is already unmounted.
func (b *base) hold(release func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unmounted {
		return false
	}
	b.releasers = append(b.releasers, release)
	return true
}

func (b *base) dropped(op string) error {
	b.logger.Debug("dropping result after unmount", "op", op)
	return newError(ErrorCanceled, op+"_after_unmount", context.Canceled)
}

// fail classifies err and logs it. Validation failures are user input, not
// faults, and are not logged.
func (b *base) fail(op string, err error) *Error {
	e := Classify(op, err)
	if e.Code != ErrorInvalidInput && e.Code != ErrorCanceled {
		b.logger.Error("screen call failed", "op", op, "code", e.Code, "err", err)
	}
	return e
}

func (b *base) record(ctx context.Context, input, output string) {
	if b.rec == nil {
		return
	}
	a := domain.Activity{
		SessionID: b.SessionID().String(),
		Feature:   b.feature,
		Input:     input,
		Output:    output,
		CreatedAt: time.Now(),
	}
	if err := b.rec.Record(context.WithoutCancel(ctx), a); err != nil {
		b.logger.Warn("failed to record activity", "err", err)
	}
}
