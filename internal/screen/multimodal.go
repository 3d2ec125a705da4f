package screen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ai-playground/internal/domain"
	"ai-playground/internal/validate"
)

var multimodalRules = validate.Required("data")

// Multimodal forwards free-form input as {"data": input} and renders the
// service's result.
type Multimodal struct {
	base
	state State
}

func NewMultimodal(d Deps) (*Multimodal, error) {
	if d.Gateway == nil {
		return nil, errors.New("screen: gateway must not be nil")
	}
	s := &Multimodal{}
	s.init(domain.FeatureMultimodal, d)
	return s, nil
}

func (s *Multimodal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Multimodal) Submit(ctx context.Context, input string) error {
	payload := domain.RequestEnvelope{"data": input}
	if res := validate.Validate(multimodalRules, payload); !res.Valid {
		s.commit(func() {
			s.state.Input = input
			s.state.Error = res.Error
			s.state.Output = ""
		})
		return newError(ErrorInvalidInput, "data_validation", res.Err())
	}

	callCtx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.commit(func() {
		s.state = State{Input: input, Loading: true}
	})

	res, err := s.gw.MultimodalTask(callCtx, payload)
	if err != nil {
		e := s.fail("multimodal_task", err)
		if !s.commit(func() {
			s.state.Loading = false
			s.state.Output = "Error: " + DisplayMessage(err)
		}) {
			return s.dropped("multimodal_task")
		}
		return e
	}

	out := renderResult(res.Result)
	if !s.commit(func() {
		s.state.Loading = false
		s.state.Output = out
	}) {
		return s.dropped("multimodal_task")
	}
	s.record(callCtx, input, out)
	return nil
}

func renderResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(buf)
	}
}
