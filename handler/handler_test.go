package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/usecase"
)

type stubUseCase struct {
	out          usecase.ChatOutput
	err          error
	chatIn       usecase.ChatInput
	suggestionIn usecase.SuggestionInput
	resetID      string
	health       usecase.HealthInfo
}

func (s *stubUseCase) Chat(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.chatIn = in
	return s.out, s.err
}

func (s *stubUseCase) SelectSuggestion(_ context.Context, in usecase.SuggestionInput) (usecase.ChatOutput, error) {
	s.suggestionIn = in
	return s.out, s.err
}

func (s *stubUseCase) Reset(_ context.Context, sessionID string) (usecase.ChatOutput, error) {
	s.resetID = sessionID
	return s.out, s.err
}

func (s *stubUseCase) Health() usecase.HealthInfo {
	return s.health
}

func makeEvent(path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func sampleOutput() usecase.ChatOutput {
	return usecase.ChatOutput{
		SessionID: "sess-1",
		Reply: domain.Reply{
			Message:     "Mi experiencia incluye:",
			Suggestions: []domain.Suggestion{{Text: "Rol actual", Action: "current_role"}},
			Intent:      domain.IntentExperience,
			Confidence:  0.5,
			Navigate:    "/resume",
		},
		Status: usecase.Status{Initialized: true, UsingFallback: true},
	}
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_ChatHappyPath(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/chat", `{"sessionId":"sess-1","message":"¿Cuál es tu experiencia?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{SessionID: "sess-1", Message: "¿Cuál es tu experiencia?"}, uc.chatIn)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "sess-1", out.SessionID)
	require.Equal(t, domain.IntentExperience, out.Intent)
	require.Equal(t, "/resume", out.Navigate)
	require.Equal(t, []domain.Suggestion{{Text: "Rol actual", Action: "current_role"}}, out.Suggestions)
	require.Equal(t, statusResponse{Initialized: true, UsingFallback: true}, out.Status)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_WireShape(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{SessionID: "s", Reply: domain.Reply{Intent: domain.IntentUnknown}}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/chat", `{"message":"x"}`))
	require.NoError(t, err)

	raw := parseBody[map[string]any](t, resp.Body)
	require.Equal(t, []any{}, raw["suggestions"])
	require.NotContains(t, raw, "navigate")
	require.Contains(t, raw, "status")

	uc.out.Reply.Suggestions = []domain.Suggestion{{Text: "Reintentar", Action: "retry", Payload: "proyecto"}}
	resp, err = h.Handle(context.Background(), makeEvent("/chat", `{"message":"proyecto"}`))
	require.NoError(t, err)
	raw = parseBody[map[string]any](t, resp.Body)
	require.Equal(t, []any{map[string]any{"text": "Reintentar", "action": "retry", "payload": "proyecto"}}, raw["suggestions"])
}

func TestHandle_SuggestionAndReset(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent("/prod/suggestion", `{"sessionId":"sess-1","action":"projects","text":"Proyectos"}`)
	event.Resource = "/suggestion"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.SuggestionInput{SessionID: "sess-1", Action: "projects", Text: "Proyectos"}, uc.suggestionIn)

	resp, err = h.Handle(context.Background(), makeEvent("/reset", `{"sessionId":"sess-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sess-1", uc.resetID)
}

func TestHandle_RoutesOnExactPath(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	for _, path := range []string{"/anything/else/chat", "/chat/", "/prod/chat", "chat"} {
		resp, err := h.Handle(context.Background(), makeEvent(path, `{"message":"hola"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "path=%q", path)
	}
	require.Empty(t, uc.chatIn.Message)

	event := makeEvent("/chat", `{"message":"hola"}`)
	event.Resource = "/{proxy+}"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hola", uc.chatIn.Message)
}

func TestHandle_Base64Body(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent("/chat", base64.StdEncoding.EncodeToString([]byte(`{"message":"hola"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hola", uc.chatIn.Message)
}

func TestHandle_InvalidBody(t *testing.T) {
	uc := &stubUseCase{}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	for _, path := range []string{"/chat", "/suggestion", "/reset"} {
		resp, err := h.Handle(context.Background(), makeEvent(path, `not-json`))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)

		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	}
}

func TestHandle_Health(t *testing.T) {
	uc := &stubUseCase{health: usecase.HealthInfo{Classifier: "rule", StoreBackend: "dynamodb", Ready: true}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent("/health", "")
	event.HTTPMethod = http.MethodGet
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[healthResponse](t, resp.Body)
	require.Equal(t, healthResponse{Status: "ok", Classifier: "rule", StoreBackend: "dynamodb", Ready: true}, out)
}

func TestHandle_UnknownRouteAndMethod(t *testing.T) {
	h, err := NewHandler(&stubUseCase{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/ask", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	event := makeEvent("/chat", "")
	event.HTTPMethod = http.MethodGet
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent("/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_session_id"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "store"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h, err := NewHandler(uc)
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent("/chat", `{"message":"hola"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent("/chat", `{"message":"hola"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestRouter_ServesHTTP(t *testing.T) {
	uc := &stubUseCase{out: sampleOutput()}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(`{"message":"experiencia"}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-Id", "corr-http")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-http", resp.Header.Get("X-Correlation-Id"))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "experiencia", uc.chatIn.Message)
	require.Equal(t, "sess-1", parseBody[chatResponse](t, string(body)).SessionID)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
