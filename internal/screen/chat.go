package screen

import (
	"context"
	"errors"

	"ai-playground/internal/domain"
	"ai-playground/internal/validate"
)

var chatRules = validate.Required("query")

// ChatState is the text chat view state.
type ChatState struct {
	State
	History []domain.ChatTurn
}

// Chat is the session-aware text chat screen.
type Chat struct {
	base
	state ChatState
}

func NewChat(d Deps) (*Chat, error) {
	if d.Gateway == nil {
		return nil, errors.New("screen: gateway must not be nil")
	}
	c := &Chat{}
	c.init(domain.FeatureChat, d)
	return c, nil
}

// State returns a snapshot of the view state.
func (c *Chat) State() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.History = append([]domain.ChatTurn(nil), c.state.History...)
	return s
}

// Submit validates input, asks the AI service and appends the exchange to
// the history. A failed call leaves the history untouched.
func (c *Chat) Submit(ctx context.Context, input string) error {
	if res := validate.Validate(chatRules, map[string]any{"query": input}); !res.Valid {
		c.commit(func() {
			c.state.Input = input
			c.state.Error = res.Error
			c.state.Output = ""
		})
		return newError(ErrorInvalidInput, "query_validation", res.Err())
	}

	callCtx, done, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	c.commit(func() {
		c.state.Input = input
		c.state.Error = ""
		c.state.Loading = true
	})

	res, err := c.gw.AskText(callCtx, input, c.SessionID().String())
	if err != nil {
		e := c.fail("ask_text", err)
		if !c.commit(func() {
			c.state.Loading = false
			c.state.Output = "Error: " + DisplayMessage(err)
		}) {
			return c.dropped("ask_text")
		}
		return e
	}

	if !c.commit(func() {
		c.state.Loading = false
		c.state.Output = res.Answer
		c.state.History = append(c.state.History,
			domain.ChatTurn{Role: "user", Content: input},
			domain.ChatTurn{Role: "assistant", Content: res.Answer},
		)
	}) {
		return c.dropped("ask_text")
	}
	c.record(callCtx, input, res.Answer)
	return nil
}
