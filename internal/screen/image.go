package screen

import (
	"context"
	"errors"

	"ai-playground/internal/domain"
	"ai-playground/internal/validate"
)

var imageRules = validate.Required("prompt")

// ImageGen is the image generation screen. Output holds the image URL.
type ImageGen struct {
	base
	state State
}

func NewImageGen(d Deps) (*ImageGen, error) {
	if d.Gateway == nil {
		return nil, errors.New("screen: gateway must not be nil")
	}
	s := &ImageGen{}
	s.init(domain.FeatureImage, d)
	return s, nil
}

func (s *ImageGen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ImageGen) Submit(ctx context.Context, prompt string) error {
	if res := validate.Validate(imageRules, map[string]any{"prompt": prompt}); !res.Valid {
		s.commit(func() {
			s.state.Input = prompt
			s.state.Error = res.Error
			s.state.Output = ""
		})
		return newError(ErrorInvalidInput, "prompt_validation", res.Err())
	}

	callCtx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.commit(func() {
		s.state = State{Input: prompt, Loading: true}
	})

	res, err := s.gw.GenerateImage(callCtx, prompt)
	if err != nil {
		e := s.fail("generate_image", err)
		if !s.commit(func() {
			s.state.Loading = false
			s.state.Output = "Error: " + DisplayMessage(err)
		}) {
			return s.dropped("generate_image")
		}
		return e
	}

	if !s.commit(func() {
		s.state.Loading = false
		s.state.Output = res.ImageURL
	}) {
		return s.dropped("generate_image")
	}
	s.record(callCtx, prompt, res.ImageURL)
	return nil
}
