package screen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ai-playground/internal/domain"
	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/repository"
	"ai-playground/internal/session"
	"ai-playground/internal/validate"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeGateway struct {
	mu       sync.Mutex
	sessions []string

	ask        func(ctx context.Context, query string) (aiservice.AskResult, error)
	image      func(ctx context.Context, prompt string) (aiservice.ImageResult, error)
	story      func(ctx context.Context, topic string) (aiservice.StoryResult, error)
	transcribe func(ctx context.Context, f aiservice.AudioFile) (aiservice.TranscriptResult, error)
	multimodal func(ctx context.Context, p domain.RequestEnvelope) (aiservice.MultimodalResult, error)
}

func (g *fakeGateway) seen(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, sessionID)
}

func (g *fakeGateway) AskText(ctx context.Context, query, sessionID string) (aiservice.AskResult, error) {
	g.seen(sessionID)
	return g.ask(ctx, query)
}

func (g *fakeGateway) GenerateImage(ctx context.Context, prompt string) (aiservice.ImageResult, error) {
	return g.image(ctx, prompt)
}

func (g *fakeGateway) GenerateStory(ctx context.Context, topic, sessionID string) (aiservice.StoryResult, error) {
	g.seen(sessionID)
	return g.story(ctx, topic)
}

func (g *fakeGateway) TranscribeAudio(ctx context.Context, f aiservice.AudioFile, sessionID string) (aiservice.TranscriptResult, error) {
	g.seen(sessionID)
	return g.transcribe(ctx, f)
}

func (g *fakeGateway) MultimodalTask(ctx context.Context, p domain.RequestEnvelope) (aiservice.MultimodalResult, error) {
	return g.multimodal(ctx, p)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deps(g Gateway, rec repository.Recorder) Deps {
	return Deps{Gateway: g, Recorder: rec, Logger: quietLogger()}
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var sErr *Error
	require.True(t, errors.As(err, &sErr), "expected *screen.Error, got %v", err)
	require.Equal(t, code, sErr.Code)
}

// ---------------------------------------------------------------------------
// lifecycle
// ---------------------------------------------------------------------------

func TestNewScreens_RequireGateway(t *testing.T) {
	_, err := NewChat(Deps{})
	require.Error(t, err)
	_, err = NewImageGen(Deps{})
	require.Error(t, err)
	_, err = NewStory(Deps{})
	require.Error(t, err)
	_, err = NewTranscribe(Deps{})
	require.Error(t, err)
	_, err = NewMultimodal(Deps{})
	require.Error(t, err)
}

func TestMount_GeneratesStableSession(t *testing.T) {
	c, err := NewChat(deps(&fakeGateway{}, nil))
	require.NoError(t, err)
	require.True(t, c.SessionID().Empty())
	require.False(t, c.Alive())

	id := c.Mount()
	require.True(t, session.Valid(id.String()))
	require.Equal(t, id, c.Mount())
	require.Equal(t, id, c.SessionID())
	require.True(t, c.Alive())

	c.Unmount()
	c.Unmount()
	require.False(t, c.Alive())
}

func TestSubmit_BeforeMount(t *testing.T) {
	g := &fakeGateway{ask: func(context.Context, string) (aiservice.AskResult, error) {
		t.Fatal("gateway must not be called before mount")
		return aiservice.AskResult{}, nil
	}}
	c, err := NewChat(deps(g, nil))
	require.NoError(t, err)

	err = c.Submit(context.Background(), "hello")
	requireCode(t, err, ErrorInternal)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func TestChat_HappyPath(t *testing.T) {
	g := &fakeGateway{ask: func(_ context.Context, q string) (aiservice.AskResult, error) {
		return aiservice.AskResult{Answer: "hi"}, nil
	}}
	rec := repository.NewMemory(0)
	c, err := NewChat(deps(g, rec))
	require.NoError(t, err)
	id := c.Mount()

	require.NoError(t, c.Submit(context.Background(), "hello"))
	require.NoError(t, c.Submit(context.Background(), "again"))

	st := c.State()
	require.Equal(t, "hi", st.Output)
	require.False(t, st.Loading)
	require.Empty(t, st.Error)
	require.Equal(t, []domain.ChatTurn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "again"},
		{Role: "assistant", Content: "hi"},
	}, st.History)
	require.Equal(t, []string{id.String(), id.String()}, g.sessions)

	acts, err := rec.List(context.Background(), id.String(), 0)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, domain.FeatureChat, acts[0].Feature)
}

func TestChat_ValidationIsLocal(t *testing.T) {
	g := &fakeGateway{}
	c, err := NewChat(deps(g, nil))
	require.NoError(t, err)
	c.Mount()

	err = c.Submit(context.Background(), "")
	requireCode(t, err, ErrorInvalidInput)

	st := c.State()
	require.Equal(t, "Input is required", st.Error)
	require.Empty(t, st.Output)
	require.Empty(t, g.sessions)
}

func TestChat_TransportFailureCommitsNoHistory(t *testing.T) {
	g := &fakeGateway{ask: func(context.Context, string) (aiservice.AskResult, error) {
		return aiservice.AskResult{}, &aiservice.TransportError{Operation: aiservice.OpAskText, StatusCode: 500, Payload: domain.ResponseEnvelope{"error": "model offline"}}
	}}
	rec := repository.NewMemory(0)
	c, err := NewChat(deps(g, rec))
	require.NoError(t, err)
	id := c.Mount()

	err = c.Submit(context.Background(), "hello")
	requireCode(t, err, ErrorUpstream)

	st := c.State()
	require.Equal(t, "Error: model offline", st.Output)
	require.Empty(t, st.History)
	require.False(t, st.Loading)

	n, err := rec.Count(context.Background(), id.String())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestChat_RateLimited(t *testing.T) {
	g := &fakeGateway{ask: func(context.Context, string) (aiservice.AskResult, error) {
		return aiservice.AskResult{}, &aiservice.TransportError{StatusCode: 429}
	}}
	c, err := NewChat(deps(g, nil))
	require.NoError(t, err)
	c.Mount()
	requireCode(t, c.Submit(context.Background(), "hello"), ErrorRateLimited)
}

func TestChat_UnmountCancelsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	g := &fakeGateway{ask: func(ctx context.Context, _ string) (aiservice.AskResult, error) {
		close(started)
		<-ctx.Done()
		return aiservice.AskResult{}, &aiservice.TransportError{Err: ctx.Err()}
	}}
	c, err := NewChat(deps(g, nil))
	require.NoError(t, err)
	c.Mount()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(context.Background(), "hello") }()

	<-started
	c.Unmount()

	select {
	case err := <-errCh:
		requireCode(t, err, ErrorCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call was not canceled by unmount")
	}
	require.Empty(t, c.State().History)
	require.NotContains(t, c.State().Output, "Error")
}

func TestChat_LateSuccessAfterUnmountIsDropped(t *testing.T) {
	var c *Chat
	g := &fakeGateway{ask: func(context.Context, string) (aiservice.AskResult, error) {
		c.Unmount()
		return aiservice.AskResult{Answer: "too late"}, nil
	}}
	rec := repository.NewMemory(0)
	var err error
	c, err = NewChat(deps(g, rec))
	require.NoError(t, err)
	id := c.Mount()

	err = c.Submit(context.Background(), "hello")
	requireCode(t, err, ErrorCanceled)
	require.Empty(t, c.State().History)
	require.NotEqual(t, "too late", c.State().Output)

	n, _ := rec.Count(context.Background(), id.String())
	require.Zero(t, n)
}

func TestChat_CallerContextCancel(t *testing.T) {
	g := &fakeGateway{ask: func(ctx context.Context, _ string) (aiservice.AskResult, error) {
		<-ctx.Done()
		return aiservice.AskResult{}, &aiservice.TransportError{Err: ctx.Err()}
	}}
	c, err := NewChat(deps(g, nil))
	require.NoError(t, err)
	c.Mount()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Submit(ctx, "hello")
	require.Error(t, err)
	require.True(t, c.Alive(), "caller cancellation must not unmount the screen")
}

// ---------------------------------------------------------------------------
// ImageGen / Multimodal
// ---------------------------------------------------------------------------

func TestImageGen_Submit(t *testing.T) {
	g := &fakeGateway{image: func(_ context.Context, p string) (aiservice.ImageResult, error) {
		return aiservice.ImageResult{ImageURL: "https://cdn/" + p + ".png"}, nil
	}}
	s, err := NewImageGen(deps(g, nil))
	require.NoError(t, err)
	s.Mount()

	require.NoError(t, s.Submit(context.Background(), "fox"))
	require.Equal(t, "https://cdn/fox.png", s.State().Output)

	requireCode(t, s.Submit(context.Background(), " "), ErrorInvalidInput)
	require.Equal(t, "Input is required", s.State().Error)
}

func TestMultimodal_Submit(t *testing.T) {
	var got domain.RequestEnvelope
	g := &fakeGateway{multimodal: func(_ context.Context, p domain.RequestEnvelope) (aiservice.MultimodalResult, error) {
		got = p
		return aiservice.MultimodalResult{Result: map[string]any{"labels": []any{"cat"}}}, nil
	}}
	s, err := NewMultimodal(deps(g, nil))
	require.NoError(t, err)
	s.Mount()

	require.NoError(t, s.Submit(context.Background(), "what is this"))
	require.Equal(t, domain.RequestEnvelope{"data": "what is this"}, got)
	require.JSONEq(t, `{"labels":["cat"]}`, s.State().Output)
}

func TestRenderResult(t *testing.T) {
	require.Equal(t, "", renderResult(nil))
	require.Equal(t, "plain", renderResult("plain"))
	require.Equal(t, "3", renderResult(float64(3)))
}

// ---------------------------------------------------------------------------
// Story + playback
// ---------------------------------------------------------------------------

type fakePlayer struct {
	plays, pauses, closes int
	playErr               error
	active                bool
}

func (p *fakePlayer) Play(context.Context) error {
	p.plays++
	p.active = p.playErr == nil
	return p.playErr
}

func (p *fakePlayer) Pause(context.Context) error { p.pauses++; p.active = false; return nil }
func (p *fakePlayer) Active() bool                { return p.active }
func (p *fakePlayer) Close() error                { p.closes++; p.active = false; return nil }

func newStoryScreen(t *testing.T) *Story {
	t.Helper()
	g := &fakeGateway{story: func(_ context.Context, topic string) (aiservice.StoryResult, error) {
		return aiservice.StoryResult{Story: "About " + topic, AudioURL: "http://x/" + topic + ".mp3", Message: "Story generated"}, nil
	}}
	s, err := NewStory(deps(g, nil))
	require.NoError(t, err)
	s.Mount()
	return s
}

func TestStory_SubmitAndToast(t *testing.T) {
	s := newStoryScreen(t)
	require.NoError(t, s.Submit(context.Background(), "dragons"))

	st := s.State()
	require.Equal(t, "About dragons", st.Story)
	require.Equal(t, "http://x/dragons.mp3", st.AudioURL)
	require.Equal(t, &Toast{Kind: ToastSuccess, Title: "Story generated"}, st.Toast)
}

func TestStory_EmptyTopic(t *testing.T) {
	s := newStoryScreen(t)
	requireCode(t, s.Submit(context.Background(), "  "), ErrorInvalidInput)
	require.Equal(t, &Toast{Kind: ToastInfo, Title: "Please enter a story topic"}, s.State().Toast)
}

func TestStory_PlaybackReleasedOnUnmount(t *testing.T) {
	s := newStoryScreen(t)
	p := &fakePlayer{}
	opens := 0
	open := func(_ context.Context, url string) (Player, error) {
		opens++
		require.Equal(t, "http://x/dragons.mp3", url)
		return p, nil
	}

	// no audio yet: no-op
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.Zero(t, opens)

	require.NoError(t, s.Submit(context.Background(), "dragons"))
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.True(t, s.State().Playing)
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.False(t, s.State().Playing)
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.Equal(t, 1, opens)
	require.Equal(t, 2, p.plays)
	require.Equal(t, 1, p.pauses)

	s.Unmount()
	s.Unmount()
	require.Equal(t, 1, p.closes)
}

func TestStory_PlaybackFinishedRestartsOnToggle(t *testing.T) {
	s := newStoryScreen(t)
	p := &fakePlayer{}
	open := func(context.Context, string) (Player, error) { return p, nil }

	require.NoError(t, s.Submit(context.Background(), "dragons"))
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.True(t, s.State().Playing)

	// audio reached the end
	p.active = false
	require.False(t, s.State().Playing)

	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.True(t, s.State().Playing)
	require.Equal(t, 2, p.plays)
	require.Zero(t, p.pauses)

	s.Unmount()
	require.Equal(t, 1, p.closes)
}

func TestStory_PlaybackFinishedWithoutStateRead(t *testing.T) {
	s := newStoryScreen(t)
	p := &fakePlayer{}
	open := func(context.Context, string) (Player, error) { return p, nil }

	require.NoError(t, s.Submit(context.Background(), "dragons"))
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	p.active = false

	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.Equal(t, 2, p.plays)
	require.Zero(t, p.pauses)
	require.True(t, s.State().Playing)
	s.Unmount()
}

func TestStory_NewStoryReleasesPlayer(t *testing.T) {
	s := newStoryScreen(t)
	p := &fakePlayer{}
	open := func(context.Context, string) (Player, error) { return p, nil }

	require.NoError(t, s.Submit(context.Background(), "dragons"))
	require.NoError(t, s.TogglePlayback(context.Background(), open))
	require.NoError(t, s.Submit(context.Background(), "knights"))
	require.Equal(t, 1, p.closes)
	require.False(t, s.State().Playing)

	s.Unmount()
	require.Equal(t, 1, p.closes)
}

func TestStory_PlaybackErrors(t *testing.T) {
	s := newStoryScreen(t)
	require.NoError(t, s.Submit(context.Background(), "dragons"))

	err := s.TogglePlayback(context.Background(), func(context.Context, string) (Player, error) {
		return nil, errors.New("unsupported codec")
	})
	var pErr *PlaybackError
	require.True(t, errors.As(err, &pErr))
	require.Equal(t, "open", pErr.Op)

	err = s.TogglePlayback(context.Background(), nil)
	require.True(t, errors.As(err, &pErr))

	err = s.TogglePlayback(context.Background(), func(context.Context, string) (Player, error) {
		return &fakePlayer{playErr: errors.New("device busy")}, nil
	})
	require.True(t, errors.As(err, &pErr))
	require.Equal(t, "play", pErr.Op)
}

// ---------------------------------------------------------------------------
// Transcribe
// ---------------------------------------------------------------------------

func TestTranscribe_EmptyFile(t *testing.T) {
	g := &fakeGateway{}
	s, err := NewTranscribe(deps(g, nil))
	require.NoError(t, err)
	s.Mount()

	requireCode(t, s.Submit(context.Background(), aiservice.AudioFile{}), ErrorInvalidInput)
	require.Equal(t, "No file selected", s.State().Error)
	require.Empty(t, g.sessions)
}

// ---------------------------------------------------------------------------
// end to end against an httptest AI service
// ---------------------------------------------------------------------------

func newServiceClient(t *testing.T, h http.HandlerFunc) *aiservice.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := aiservice.NewClient(
		aiservice.WithBaseURL(srv.URL),
		aiservice.WithTimeout(2*time.Second),
		aiservice.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return c
}

func TestScenario_AskTextSetsOutput(t *testing.T) {
	client := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["query"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"hi"}`))
	})
	c, err := NewChat(deps(client, nil))
	require.NoError(t, err)
	c.Mount()
	defer c.Unmount()

	require.NoError(t, c.Submit(context.Background(), "hello"))
	require.Equal(t, "hi", c.State().Output)
}

func TestScenario_StoryCallsShareSession(t *testing.T) {
	var mu sync.Mutex
	var sessions []string
	client := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		sessions = append(sessions, body["session_id"])
		mu.Unlock()
		_, _ = w.Write([]byte(`{"story":"s","audio_url":"u","message":"ok"}`))
	})
	s, err := NewStory(deps(client, nil))
	require.NoError(t, err)
	id := s.Mount()
	defer s.Unmount()

	require.NoError(t, s.Submit(context.Background(), "dragons"))
	require.NoError(t, s.Submit(context.Background(), "knights"))
	require.Equal(t, []string{id.String(), id.String()}, sessions)
}

func TestScenario_TranscribeServerError(t *testing.T) {
	client := newServiceClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"bad audio"}`))
	})
	s, err := NewTranscribe(deps(client, nil))
	require.NoError(t, err)
	s.Mount()
	defer s.Unmount()

	err = s.Submit(context.Background(), aiservice.AudioFile{Data: []byte("ID3")})
	requireCode(t, err, ErrorUpstream)
	require.Contains(t, err.Error(), "bad audio")

	st := s.State()
	require.Empty(t, st.Transcript)
	require.Equal(t, ToastError, st.Toast.Kind)
	require.Equal(t, "bad audio", st.Toast.Text)
}

// ---------------------------------------------------------------------------
// error classification
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{name: "validation", err: &validate.Error{Field: "query", Message: "Input is required"}, code: ErrorInvalidInput},
		{name: "canceled", err: &aiservice.TransportError{Err: context.Canceled}, code: ErrorCanceled},
		{name: "rate limited", err: &aiservice.TransportError{StatusCode: 429}, code: ErrorRateLimited},
		{name: "server error", err: &aiservice.TransportError{StatusCode: 503}, code: ErrorUpstream},
		{name: "network", err: &aiservice.TransportError{Err: errors.New("refused")}, code: ErrorUpstream},
		{name: "other", err: errors.New("boom"), code: ErrorInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Classify("op", tc.err)
			require.Equal(t, tc.code, e.Code)
			require.ErrorIs(t, e, tc.err)
		})
	}

	require.Equal(t, "Input is required", DisplayMessage(&validate.Error{Message: "Input is required"}))
	require.Equal(t, "boom", DisplayMessage(errors.New("boom")))
}
