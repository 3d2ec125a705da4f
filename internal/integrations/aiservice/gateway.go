package aiservice

import (
	"context"
	"errors"

	"ai-playground/internal/domain"
	"ai-playground/internal/validate"
)

const (
	OpAskText         = "ask_text"
	OpGenerateImage   = "generate_image"
	OpGenerateStory   = "generate_story"
	OpTranscribeAudio = "transcribe_audio"
	OpMultimodalTask  = "multimodal_task"

	pathAskText         = "/text/ask"
	pathGenerateImage   = "/image/generate"
	pathGenerateStory   = "/audio/generate-story"
	pathTranscribeAudio = "/audio/transcribe"
	pathMultimodalTask  = "/multimodal/process"
)

var (
	askRules        = validate.Required("query", "session_id")
	imageRules      = validate.Required("prompt")
	storyRules      = validate.Required("topic", "session_id")
	transcribeRules = validate.Required("file", "session_id")
)

type AskResult struct {
	Answer string
	Raw    domain.ResponseEnvelope
}

type ImageResult struct {
	ImageURL string
	Raw      domain.ResponseEnvelope
}

type StoryResult struct {
	Story    string
	AudioURL string
	Message  string
	Raw      domain.ResponseEnvelope
}

type TranscriptResult struct {
	Transcript string
	Message    string
	Raw        domain.ResponseEnvelope
}

type MultimodalResult struct {
	Result any
	Raw    domain.ResponseEnvelope
}

// AskText sends a chat query bound to the caller's session.
func (c *Client) AskText(ctx context.Context, query, sessionID string) (AskResult, error) {
	env := domain.RequestEnvelope{"query": query, "session_id": sessionID}
	if err := preflight(askRules, env); err != nil {
		return AskResult{}, err
	}

	raw, err := c.postJSON(ctx, OpAskText, pathAskText, env)
	if err != nil {
		c.logFailure(OpAskText, err)
		return AskResult{}, err
	}
	answer, _ := raw.String("answer")
	return AskResult{Answer: answer, Raw: raw}, nil
}

// GenerateImage asks the service to render prompt and returns the image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (ImageResult, error) {
	env := domain.RequestEnvelope{"prompt": prompt}
	if err := preflight(imageRules, env); err != nil {
		return ImageResult{}, err
	}

	raw, err := c.postJSON(ctx, OpGenerateImage, pathGenerateImage, env)
	if err != nil {
		c.logFailure(OpGenerateImage, err)
		return ImageResult{}, err
	}
	imageURL, _ := raw.String("image_url")
	return ImageResult{ImageURL: imageURL, Raw: raw}, nil
}

// GenerateStory writes a story about topic and synthesises it to audio.
// Older service builds return audio_file instead of audio_url.
func (c *Client) GenerateStory(ctx context.Context, topic, sessionID string) (StoryResult, error) {
	env := domain.RequestEnvelope{"topic": topic, "session_id": sessionID}
	if err := preflight(storyRules, env); err != nil {
		return StoryResult{}, err
	}

	raw, err := c.postJSON(ctx, OpGenerateStory, pathGenerateStory, env)
	if err != nil {
		c.logFailure(OpGenerateStory, err)
		return StoryResult{}, err
	}
	story, _ := raw.String("story")
	message, _ := raw.String("message")
	return StoryResult{
		Story:    story,
		AudioURL: raw.FirstString("audio_url", "audio_file"),
		Message:  message,
		Raw:      raw,
	}, nil
}

// TranscribeAudio uploads file as multipart form data.
func (c *Client) TranscribeAudio(ctx context.Context, file AudioFile, sessionID string) (TranscriptResult, error) {
	env := domain.RequestEnvelope{"session_id": sessionID}
	if !file.Empty() {
		env["file"] = file.Normalized().Name
	}
	if err := preflight(transcribeRules, env); err != nil {
		return TranscriptResult{}, err
	}

	form, err := buildUpload(file, map[string]string{"session_id": sessionID})
	if err != nil {
		return TranscriptResult{}, err
	}
	raw, err := c.postMultipart(ctx, OpTranscribeAudio, pathTranscribeAudio, form)
	if err != nil {
		c.logFailure(OpTranscribeAudio, err)
		return TranscriptResult{}, err
	}
	message, _ := raw.String("message")
	return TranscriptResult{
		Transcript: raw.FirstString("transcript", "transcription"),
		Message:    message,
		Raw:        raw,
	}, nil
}

// MultimodalTask forwards an arbitrary payload unchanged.
func (c *Client) MultimodalTask(ctx context.Context, payload domain.RequestEnvelope) (MultimodalResult, error) {
	if payload == nil {
		payload = domain.RequestEnvelope{}
	}

	raw, err := c.postJSON(ctx, OpMultimodalTask, pathMultimodalTask, payload)
	if err != nil {
		c.logFailure(OpMultimodalTask, err)
		return MultimodalResult{}, err
	}
	result, _ := raw.Value("result")
	return MultimodalResult{Result: result, Raw: raw}, nil
}

func preflight(rules validate.Rules, env domain.RequestEnvelope) error {
	return validate.Validate(rules, env).Err()
}

func (c *Client) logFailure(op string, err error) {
	var te *TransportError
	if errors.As(err, &te) {
		c.logger.Error("ai service call failed",
			"op", op,
			"status", te.StatusCode,
			"payload", te.Payload,
			"err", te.Message(),
		)
		return
	}
	c.logger.Error("ai service call failed", "op", op, "err", err)
}
