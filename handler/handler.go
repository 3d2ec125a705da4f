// Package handler exposes the AI service gateway as an API Gateway proxy
// Lambda. Each route validates its body, forwards a single gateway call and
// returns the service response unchanged, plus the session id it used.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"ai-playground/internal/domain"
	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/repository"
	"ai-playground/internal/screen"
	"ai-playground/internal/session"
)

const correlationHeader = "X-Correlation-Id"

const maxSessionIDLen = 128

const (
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

var newCorrelationID = func() string { return uuid.NewString() }

type Handler struct {
	gw     screen.Gateway
	rec    repository.Recorder
	logger *slog.Logger
	routes map[string]routeFunc
}

type Option func(*Handler)

// WithRecorder stores every successful session-scoped call.
func WithRecorder(rec repository.Recorder) Option {
	return func(h *Handler) {
		h.rec = rec
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(gw screen.Gateway, opts ...Option) (*Handler, error) {
	if gw == nil {
		return nil, errors.New("handler: gateway must not be nil")
	}
	h := &Handler{gw: gw, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]routeFunc{
		"/ask":        h.ask,
		"/image":      h.image,
		"/story":      h.story,
		"/transcribe": h.transcribe,
		"/multimodal": h.multimodal,
	}
	return h, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type storyRequest struct {
	Topic     string `json:"topic"`
	SessionID string `json:"session_id"`
}

// transcribeRequest carries the audio as base64 since API Gateway proxy
// bodies are text.
type transcribeRequest struct {
	Data      string `json:"data"`
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type"`
	SessionID string `json:"session_id"`
}

// routeResult is the service response plus what to record about the call.
type routeResult struct {
	payload  domain.ResponseEnvelope
	activity domain.Activity
}

type routeFunc func(ctx context.Context, body []byte) (routeResult, error)

// requestError is a malformed relay request, rejected before any gateway call.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err == nil {
		return "handler: " + e.msg
	}
	return "handler: " + e.msg + ": " + e.err.Error()
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{msg: msg, err: err}
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	corrID := correlationID(req.Headers)
	logger := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	route := routePath(req.Path)
	fn, ok := h.routes[route]
	if !ok {
		return respondError(corrID, http.StatusNotFound, codeNotFound, "unknown route"), nil
	}
	if req.HTTPMethod != http.MethodPost {
		return respondError(corrID, http.StatusMethodNotAllowed, codeMethodNotAllowed, "use POST"), nil
	}

	body, err := requestBody(req)
	if err != nil {
		return h.failure(logger, corrID, route, err), nil
	}

	res, err := fn(ctx, body)
	if err != nil {
		return h.failure(logger, corrID, route, err), nil
	}

	if h.rec != nil && res.activity.SessionID != "" {
		res.activity.CreatedAt = time.Now()
		if err := h.rec.Record(context.WithoutCancel(ctx), res.activity); err != nil {
			logger.Warn("failed to record activity", "err", err)
		}
	}

	out := make(domain.ResponseEnvelope, len(res.payload)+1)
	for k, v := range res.payload {
		out[k] = v
	}
	if res.activity.SessionID != "" {
		out["session_id"] = res.activity.SessionID
	}

	logger.Info("relay request handled", "route", route, "status", http.StatusOK, "duration_ms", time.Since(start).Milliseconds())
	return respondJSON(corrID, http.StatusOK, out), nil
}

func (h *Handler) ask(ctx context.Context, body []byte) (routeResult, error) {
	var in askRequest
	if err := decode(body, &in); err != nil {
		return routeResult{}, err
	}
	sid, err := sessionFor(in.SessionID)
	if err != nil {
		return routeResult{}, err
	}
	res, err := h.gw.AskText(ctx, in.Query, sid)
	if err != nil {
		return routeResult{}, screen.Classify(aiservice.OpAskText, err)
	}
	return routeResult{
		payload:  res.Raw,
		activity: domain.Activity{SessionID: sid, Feature: domain.FeatureChat, Input: in.Query, Output: res.Answer},
	}, nil
}

func (h *Handler) image(ctx context.Context, body []byte) (routeResult, error) {
	var in imageRequest
	if err := decode(body, &in); err != nil {
		return routeResult{}, err
	}
	res, err := h.gw.GenerateImage(ctx, in.Prompt)
	if err != nil {
		return routeResult{}, screen.Classify(aiservice.OpGenerateImage, err)
	}
	return routeResult{payload: res.Raw}, nil
}

func (h *Handler) story(ctx context.Context, body []byte) (routeResult, error) {
	var in storyRequest
	if err := decode(body, &in); err != nil {
		return routeResult{}, err
	}
	sid, err := sessionFor(in.SessionID)
	if err != nil {
		return routeResult{}, err
	}
	res, err := h.gw.GenerateStory(ctx, in.Topic, sid)
	if err != nil {
		return routeResult{}, screen.Classify(aiservice.OpGenerateStory, err)
	}
	return routeResult{
		payload:  res.Raw,
		activity: domain.Activity{SessionID: sid, Feature: domain.FeatureStory, Input: in.Topic, Output: res.Story},
	}, nil
}

func (h *Handler) transcribe(ctx context.Context, body []byte) (routeResult, error) {
	var in transcribeRequest
	if err := decode(body, &in); err != nil {
		return routeResult{}, err
	}
	sid, err := sessionFor(in.SessionID)
	if err != nil {
		return routeResult{}, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.Data))
	if err != nil {
		return routeResult{}, badRequest("data must be base64 encoded", err)
	}
	file, err := aiservice.NewAudioFile(in.Filename, in.MIMEType, bytes.NewReader(data))
	if err != nil {
		return routeResult{}, badRequest("invalid audio", err)
	}
	res, err := h.gw.TranscribeAudio(ctx, file, sid)
	if err != nil {
		return routeResult{}, screen.Classify(aiservice.OpTranscribeAudio, err)
	}
	return routeResult{
		payload:  res.Raw,
		activity: domain.Activity{SessionID: sid, Feature: domain.FeatureTranscribe, Input: file.Normalized().Name, Output: res.Transcript},
	}, nil
}

func (h *Handler) multimodal(ctx context.Context, body []byte) (routeResult, error) {
	var in domain.RequestEnvelope
	if err := decode(body, &in); err != nil {
		return routeResult{}, err
	}
	res, err := h.gw.MultimodalTask(ctx, in)
	if err != nil {
		return routeResult{}, screen.Classify(aiservice.OpMultimodalTask, err)
	}
	return routeResult{payload: res.Raw}, nil
}

func (h *Handler) failure(logger *slog.Logger, corrID, route string, err error) events.APIGatewayProxyResponse {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return respondError(corrID, http.StatusBadRequest, string(screen.ErrorInvalidInput), reqErr.msg)
	}

	var sErr *screen.Error
	if !errors.As(err, &sErr) {
		logger.Error("relay request failed", "route", route, "err", err)
		return respondError(corrID, http.StatusInternalServerError, string(screen.ErrorInternal), "internal error")
	}

	status := statusFor(sErr.Code)
	msg := screen.DisplayMessage(sErr.Err)
	switch sErr.Code {
	case screen.ErrorInvalidInput:
		logger.Info("relay request rejected", "route", route, "reason", sErr.Reason, "message", msg)
	case screen.ErrorInternal:
		logger.Error("relay request failed", "route", route, "reason", sErr.Reason, "err", err)
		msg = "internal error"
	default:
		logger.Error("relay request failed", "route", route, "code", sErr.Code, "reason", sErr.Reason, "err", err)
	}
	return respondError(corrID, status, string(sErr.Code), msg)
}

func statusFor(code screen.ErrorCode) int {
	switch code {
	case screen.ErrorInvalidInput:
		return http.StatusBadRequest
	case screen.ErrorRateLimited:
		return http.StatusTooManyRequests
	case screen.ErrorUpstream:
		return http.StatusBadGateway
	case screen.ErrorCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sessionFor returns the caller's session id or a fresh one.
// Any printable id is forwarded as is.
func sessionFor(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.New().String(), nil
	}
	if utf8.RuneCountInString(id) > maxSessionIDLen {
		return "", badRequest(fmt.Sprintf("session_id must be at most %d characters", maxSessionIDLen), nil)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return "", badRequest("session_id must not contain control characters", nil)
	}
	return id, nil
}

// decode keeps numbers as json.Number so forwarded payloads are not altered.
func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return badRequest("invalid request body", errors.New("unexpected data after JSON value"))
	}
	return nil
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, badRequest("invalid request body", err)
	}
	return b, nil
}

// routePath keeps the last path segment so stage and base path prefixes
// do not matter.
func routePath(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i:]
	}
	return strings.ToLower(p)
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return newCorrelationID()
}

func respondError(corrID string, status int, code, msg string) events.APIGatewayProxyResponse {
	return respondJSON(corrID, status, errorResponse{Error: code, Message: msg})
}

func respondJSON(corrID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
