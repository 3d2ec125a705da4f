package screen

import (
	"context"
	"errors"

	"ai-playground/internal/domain"
	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/validate"
)

var transcribeRules = validate.Rules{
	{Field: "file", Required: true, Message: "No file selected"},
}

// TranscribeState is the speech-to-text view state.
type TranscribeState struct {
	State
	Transcript string
	Toast      *Toast
}

// Transcribe uploads an audio file and shows its transcript.
type Transcribe struct {
	base
	state TranscribeState
}

func NewTranscribe(d Deps) (*Transcribe, error) {
	if d.Gateway == nil {
		return nil, errors.New("screen: gateway must not be nil")
	}
	s := &Transcribe{}
	s.init(domain.FeatureTranscribe, d)
	return s, nil
}

func (s *Transcribe) State() TranscribeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Transcribe) Submit(ctx context.Context, file aiservice.AudioFile) error {
	payload := map[string]any{}
	if !file.Empty() {
		payload["file"] = file.Normalized().Name
	}
	if res := validate.Validate(transcribeRules, payload); !res.Valid {
		s.commit(func() {
			s.state.Error = res.Error
			s.state.Toast = &Toast{Kind: ToastError, Title: "Failed to transcribe audio", Text: res.Error}
		})
		return newError(ErrorInvalidInput, "file_validation", res.Err())
	}
	name := payload["file"].(string)

	callCtx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.commit(func() {
		s.state = TranscribeState{State: State{Input: name, Loading: true}}
	})

	res, err := s.gw.TranscribeAudio(callCtx, file, s.SessionID().String())
	if err != nil {
		e := s.fail("transcribe_audio", err)
		if !s.commit(func() {
			s.state.Loading = false
			s.state.Toast = &Toast{Kind: ToastError, Title: "Failed to transcribe audio", Text: DisplayMessage(err)}
		}) {
			return s.dropped("transcribe_audio")
		}
		return e
	}

	if !s.commit(func() {
		s.state.Loading = false
		s.state.Transcript = res.Transcript
		s.state.Output = res.Transcript
		s.state.Toast = &Toast{Kind: ToastSuccess, Title: res.Message}
	}) {
		return s.dropped("transcribe_audio")
	}
	s.record(callCtx, name, res.Transcript)
	return nil
}
