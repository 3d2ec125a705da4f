package screen

import (
	"context"
	"errors"
	"sync"

	"ai-playground/internal/domain"
	"ai-playground/internal/validate"
)

var storyRules = validate.Rules{
	{Field: "topic", Required: true, MinLength: 1, Message: "Please enter a story topic"},
}

// Player is a loaded audio resource.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// Active reports whether audio is currently playing. It turns false when
	// playback reaches the end on its own.
	Active() bool
	Close() error
}

// PlayerOpener loads the audio behind url.
type PlayerOpener func(ctx context.Context, url string) (Player, error)

// StoryState is the text-to-speech view state.
type StoryState struct {
	State
	Story    string
	AudioURL string
	Toast    *Toast
	Playing  bool
}

// Story generates a story for a topic and exposes its narrated audio.
type Story struct {
	base
	state StoryState

	playMu sync.Mutex
	player Player
}

func NewStory(d Deps) (*Story, error) {
	if d.Gateway == nil {
		return nil, errors.New("screen: gateway must not be nil")
	}
	s := &Story{}
	s.init(domain.FeatureStory, d)
	return s, nil
}

func (s *Story) State() StoryState {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	return s.stateLocked()
}

// stateLocked must be called with playMu held. It clears Playing once the
// player has finished by itself.
func (s *Story) stateLocked() StoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Playing && s.player != nil && !s.player.Active() && !s.unmounted {
		s.state.Playing = false
	}
	return s.state
}

func (s *Story) Submit(ctx context.Context, topic string) error {
	if res := validate.Validate(storyRules, map[string]any{"topic": topic}); !res.Valid {
		s.commit(func() {
			s.state.Input = topic
			s.state.Error = res.Error
			s.state.Toast = &Toast{Kind: ToastInfo, Title: res.Error}
		})
		return newError(ErrorInvalidInput, "topic_validation", res.Err())
	}

	callCtx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.releasePlayer()
	s.commit(func() {
		s.state = StoryState{State: State{Input: topic, Loading: true}}
	})

	res, err := s.gw.GenerateStory(callCtx, topic, s.SessionID().String())
	if err != nil {
		e := s.fail("generate_story", err)
		if !s.commit(func() {
			s.state.Loading = false
			s.state.Toast = &Toast{Kind: ToastError, Title: "Failed to generate story", Text: DisplayMessage(err)}
		}) {
			return s.dropped("generate_story")
		}
		return e
	}

	if !s.commit(func() {
		s.state.Loading = false
		s.state.Story = res.Story
		s.state.AudioURL = res.AudioURL
		s.state.Output = res.Story
		s.state.Toast = &Toast{Kind: ToastSuccess, Title: res.Message}
	}) {
		return s.dropped("generate_story")
	}
	s.record(callCtx, topic, res.Story)
	return nil
}

// TogglePlayback loads the story audio on first use, then alternates between
// play and pause. The player is released on Unmount or when a new story is
// generated.
func (s *Story) TogglePlayback(ctx context.Context, open PlayerOpener) error {
	if open == nil {
		return &PlaybackError{Op: "open", Err: errors.New("player opener must not be nil")}
	}
	s.playMu.Lock()
	defer s.playMu.Unlock()

	st := s.stateLocked()
	if st.AudioURL == "" {
		return nil
	}
	if !s.Alive() {
		return &PlaybackError{Op: "open", Err: errors.New("screen is not mounted")}
	}

	if s.player == nil {
		p, err := open(ctx, st.AudioURL)
		if err != nil {
			return &PlaybackError{Op: "open", Err: err}
		}
		s.player = p
		if !s.hold(s.releasePlayer) {
			s.releasePlayerLocked()
			return &PlaybackError{Op: "open", Err: errors.New("screen is not mounted")}
		}
		if err := p.Play(ctx); err != nil {
			return &PlaybackError{Op: "play", Err: err}
		}
		s.commit(func() { s.state.Playing = true })
		return nil
	}

	if st.Playing {
		if err := s.player.Pause(ctx); err != nil {
			return &PlaybackError{Op: "pause", Err: err}
		}
		s.commit(func() { s.state.Playing = false })
		return nil
	}
	if err := s.player.Play(ctx); err != nil {
		return &PlaybackError{Op: "play", Err: err}
	}
	s.commit(func() { s.state.Playing = true })
	return nil
}

func (s *Story) releasePlayer() {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	s.releasePlayerLocked()
}

// releasePlayerLocked must be called with playMu held.
func (s *Story) releasePlayerLocked() {
	p := s.player
	s.player = nil
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		s.logger.Warn("failed to release audio player", "err", err)
	}
	s.commit(func() { s.state.Playing = false })
}
