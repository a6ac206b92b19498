// Package handler exposes the chat service over API Gateway proxy events. The
// same handler serves plain HTTP through Router.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

const (
	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// UseCase is the subset of the chat service the handler drives.
type UseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	SelectSuggestion(ctx context.Context, in usecase.SuggestionInput) (usecase.ChatOutput, error)
	Reset(ctx context.Context, sessionID string) (usecase.ChatOutput, error)
	Health() usecase.HealthInfo
}

type Handler struct {
	uc     UseCase
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(uc UseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type suggestionRequest struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
	Text      string `json:"text"`
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

type statusResponse struct {
	Initialized   bool `json:"initialized"`
	UsingFallback bool `json:"usingFallback"`
	Error         bool `json:"error"`
}

type chatResponse struct {
	SessionID   string              `json:"sessionId"`
	Message     string              `json:"message"`
	Suggestions []domain.Suggestion `json:"suggestions"`
	Intent      domain.Intent       `json:"intent"`
	Confidence  float64             `json:"confidence"`
	Navigate    string              `json:"navigate,omitempty"`
	Status      statusResponse      `json:"status"`
}

type healthResponse struct {
	Status           string `json:"status"`
	Classifier       string `json:"classifier"`
	GeneratorEnabled bool   `json:"generatorEnabled"`
	StoreBackend     string `json:"storeBackend"`
	Ready            bool   `json:"ready"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle serves one API Gateway proxy request. It never returns an error;
// failures are encoded in the response.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	resp := h.route(ctx, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID

	h.logger.InfoContext(ctx, "request handled",
		"correlation_id", correlationID,
		"method", req.HTTPMethod,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	endpoint := endpoints[resourcePath(req)]
	method := strings.ToUpper(req.HTTPMethod)

	switch endpoint {
	case "chat", "suggestion", "reset":
		if method != http.MethodPost {
			return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
		}
	case "health":
		if method != http.MethodGet {
			return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
		}
		return jsonResponse(http.StatusOK, h.health())
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Error: errorNotFound})
	}

	body, err := requestBody(req)
	if err != nil {
		return invalidBody()
	}

	var (
		out   usecase.ChatOutput
		ucErr error
	)
	switch endpoint {
	case "chat":
		var in chatRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return invalidBody()
		}
		out, ucErr = h.uc.Chat(ctx, usecase.ChatInput{SessionID: in.SessionID, Message: in.Message})
	case "suggestion":
		var in suggestionRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return invalidBody()
		}
		out, ucErr = h.uc.SelectSuggestion(ctx, usecase.SuggestionInput{SessionID: in.SessionID, Action: in.Action, Text: in.Text})
	case "reset":
		var in resetRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return invalidBody()
		}
		out, ucErr = h.uc.Reset(ctx, in.SessionID)
	}
	if ucErr != nil {
		return h.errorResponse(ctx, ucErr)
	}
	return jsonResponse(http.StatusOK, toChatResponse(out))
}

func (h *Handler) health() healthResponse {
	info := h.uc.Health()
	return healthResponse{
		Status:           "ok",
		Classifier:       info.Classifier,
		GeneratorEnabled: info.GeneratorEnabled,
		StoreBackend:     info.StoreBackend,
		Ready:            info.Ready,
	}
}

func (h *Handler) errorResponse(ctx context.Context, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.logger.ErrorContext(ctx, "unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
	}
	status := http.StatusInternalServerError
	if ucErr.Code == usecase.ErrorInvalidInput {
		status = http.StatusBadRequest
	} else {
		h.logger.ErrorContext(ctx, "request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func toChatResponse(out usecase.ChatOutput) chatResponse {
	suggestions := out.Reply.Suggestions
	if suggestions == nil {
		suggestions = []domain.Suggestion{}
	}
	return chatResponse{
		SessionID:   out.SessionID,
		Message:     out.Reply.Message,
		Suggestions: suggestions,
		Intent:      out.Reply.Intent,
		Confidence:  out.Reply.Confidence,
		Navigate:    out.Reply.Navigate,
		Status: statusResponse{
			Initialized:   out.Status.Initialized,
			UsingFallback: out.Status.UsingFallback,
			Error:         out.Status.Error,
		},
	}
}

func invalidBody() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// headerValue looks a header up case-insensitively; API Gateway preserves the
// client's casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var endpoints = map[string]string{
	"/chat":       "chat",
	"/suggestion": "suggestion",
	"/reset":      "reset",
	"/health":     "health",
}

// resourcePath is the API Gateway resource the request matched. A greedy
// proxy resource carries no route, so the request path is used instead.
func resourcePath(req events.APIGatewayProxyRequest) string {
	if req.Resource != "" && !strings.Contains(req.Resource, "{") {
		return req.Resource
	}
	return req.Path
}
