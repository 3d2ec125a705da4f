// Package shell is a line-oriented terminal front-end. It mounts one of each
// screen for its lifetime and dispatches commands to them.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/repository"
	"ai-playground/internal/screen"
	"ai-playground/internal/session"
)

const helpText = `commands:
  chat <text>          ask the assistant (session aware)
  image <prompt>       generate an image
  story <topic>        generate a narrated story
  play                 play or pause the last story's audio
  transcribe <path>    transcribe an audio file
  multimodal <text>    send free-form input to the multimodal endpoint
  session              show the session id of each screen
  history [n]          show recorded activity
  help                 show this help
  quit                 leave the playground`

type Shell struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	rec    repository.Recorder
	opener screen.PlayerOpener

	chat       *screen.Chat
	image      *screen.ImageGen
	story      *screen.Story
	transcribe *screen.Transcribe
	multimodal *screen.Multimodal
}

type Option func(*Shell)

// WithPlayer enables the play command.
func WithPlayer(open screen.PlayerOpener) Option {
	return func(s *Shell) {
		s.opener = open
	}
}

func New(d screen.Deps, in io.Reader, out io.Writer, opts ...Option) (*Shell, error) {
	if in == nil || out == nil {
		return nil, errors.New("shell: input and output must not be nil")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Shell{in: in, out: out, logger: d.Logger, rec: d.Recorder}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.chat, err = screen.NewChat(d); err != nil {
		return nil, err
	}
	if s.image, err = screen.NewImageGen(d); err != nil {
		return nil, err
	}
	if s.story, err = screen.NewStory(d); err != nil {
		return nil, err
	}
	if s.transcribe, err = screen.NewTranscribe(d); err != nil {
		return nil, err
	}
	if s.multimodal, err = screen.NewMultimodal(d); err != nil {
		return nil, err
	}
	return s, nil
}

type mountable interface {
	Mount() session.ID
	Unmount()
}

func (s *Shell) screens() []mountable {
	return []mountable{s.chat, s.image, s.story, s.transcribe, s.multimodal}
}

// Run mounts every screen, processes commands until quit, EOF or ctx is
// done, then unmounts them.
func (s *Shell) Run(ctx context.Context) error {
	for _, sc := range s.screens() {
		sc.Mount()
	}
	defer func() {
		for _, sc := range s.screens() {
			sc.Unmount()
		}
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.printf("AI playground. Type \"help\" for commands.\n")
	for {
		s.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if s.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs a single command line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "quit", "exit":
		return true
	case "help":
		s.printf("%s\n", helpText)
	case "chat":
		s.doChat(ctx, arg)
	case "image":
		s.doImage(ctx, arg)
	case "story":
		s.doStory(ctx, arg)
	case "play":
		s.doPlay(ctx)
	case "transcribe":
		s.doTranscribe(ctx, arg)
	case "multimodal":
		s.doMultimodal(ctx, arg)
	case "session":
		s.doSession()
	case "history":
		s.doHistory(ctx, arg)
	default:
		s.printf("unknown command %q, type \"help\"\n", cmd)
	}
	return false
}

func (s *Shell) doChat(ctx context.Context, text string) {
	err := s.chat.Submit(ctx, text)
	st := s.chat.State()
	if s.reportFailure(err, st.Error, st.Output) {
		return
	}
	s.printf("assistant: %s\n", st.Output)
}

func (s *Shell) doImage(ctx context.Context, prompt string) {
	err := s.image.Submit(ctx, prompt)
	st := s.image.State()
	if s.reportFailure(err, st.Error, st.Output) {
		return
	}
	s.printf("image: %s\n", st.Output)
}

func (s *Shell) doStory(ctx context.Context, topic string) {
	err := s.story.Submit(ctx, topic)
	st := s.story.State()
	if err == nil {
		s.printf("%s\n", st.Story)
		if st.AudioURL != "" {
			s.printf("audio: %s\n", st.AudioURL)
		}
	}
	s.printToast(st.Toast)
}

func (s *Shell) doPlay(ctx context.Context) {
	if s.opener == nil {
		s.printf("playback is not configured (set PLAYER_CMD)\n")
		return
	}
	st := s.story.State()
	if st.AudioURL == "" {
		s.printf("no story audio yet, run \"story <topic>\" first\n")
		return
	}
	if err := s.story.TogglePlayback(ctx, s.opener); err != nil {
		s.printf("! %s\n", err)
		return
	}
	if st.Playing {
		s.printf("paused\n")
	} else {
		s.printf("playing\n")
	}
}

func (s *Shell) doTranscribe(ctx context.Context, path string) {
	var file aiservice.AudioFile
	if path != "" {
		f, err := aiservice.OpenAudioFile(path)
		if err != nil {
			s.printf("! %s\n", err)
			return
		}
		file = f
	}
	err := s.transcribe.Submit(ctx, file)
	st := s.transcribe.State()
	if err == nil {
		s.printf("transcript: %s\n", st.Transcript)
	}
	s.printToast(st.Toast)
}

func (s *Shell) doMultimodal(ctx context.Context, text string) {
	err := s.multimodal.Submit(ctx, text)
	st := s.multimodal.State()
	if s.reportFailure(err, st.Error, st.Output) {
		return
	}
	s.printf("result: %s\n", st.Output)
}

func (s *Shell) doSession() {
	s.printf("chat        %s\n", s.chat.SessionID())
	s.printf("story       %s\n", s.story.SessionID())
	s.printf("transcribe  %s\n", s.transcribe.SessionID())
}

func (s *Shell) doHistory(ctx context.Context, arg string) {
	if s.rec == nil {
		s.printf("history is disabled (set HISTORY_BACKEND)\n")
		return
	}
	limit := 10
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			s.printf("! history expects a positive number\n")
			return
		}
		limit = n
	}

	ids := []string{s.chat.SessionID().String(), s.story.SessionID().String(), s.transcribe.SessionID().String()}
	printed := 0
	for _, id := range ids {
		acts, err := s.rec.List(ctx, id, limit)
		if err != nil {
			s.logger.Error("failed to list history", "session_id", id, "err", err)
			s.printf("! history unavailable\n")
			return
		}
		for _, a := range acts {
			s.printf("%s  %-10s  %s -> %s\n", a.CreatedAt.Local().Format(time.TimeOnly), a.Feature, a.Input, a.Output)
			printed++
		}
	}
	if printed == 0 {
		s.printf("no activity yet\n")
	}
}

// reportFailure prints the inline validation message or the screen's error
// output for a failed submit. It reports whether err was non-nil.
func (s *Shell) reportFailure(err error, inline, output string) bool {
	if err == nil {
		return false
	}
	var sErr *screen.Error
	switch {
	case errors.As(err, &sErr) && sErr.Code == screen.ErrorInvalidInput:
		s.printf("! %s\n", inline)
	case strings.HasPrefix(output, "Error: "):
		s.printf("%s\n", output)
	default:
		s.printf("! %s\n", err)
	}
	return true
}

func (s *Shell) printToast(t *screen.Toast) {
	if t == nil || t.Title == "" {
		return
	}
	if t.Text != "" {
		s.printf("[%s] %s: %s\n", t.Kind, t.Title, t.Text)
		return
	}
	s.printf("[%s] %s\n", t.Kind, t.Title)
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
