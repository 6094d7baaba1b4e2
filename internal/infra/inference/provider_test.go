package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_RequestShape(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"ingredients\":"},{"text":"[]}"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL+"/", "test-model", "secret", srv.Client())
	out, err := p.Generate(context.Background(), Request{
		Prompt: "list ingredients",
		Parts:  []Part{{MimeType: "image/png", Data: []byte("png-bytes")}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ingredients":[]}`, out)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "list ingredients", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), parts[1].InlineData.Data)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
}

func TestGeminiProvider_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "m", "bad", srv.Client())
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "INVALID_ARGUMENT", se.Status)

	reason, retryable := Classify(err)
	assert.Equal(t, ReasonMisconfigured, reason)
	assert.False(t, retryable)
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "m", "k", srv.Client())
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiProvider_MissingKeySkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "m", "", srv.Client())
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, called)
}

func TestOpenAIProvider_RequestShape(t *testing.T) {
	var got chatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"Soup\"}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "gpt-4o-mini", "sk-test", srv.Client())
	out, err := p.Generate(context.Background(), Request{
		Prompt: "make a recipe",
		Parts:  []Part{{MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Soup"}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 1)
	content := got.Messages[0].Content
	require.Len(t, content, 2)
	assert.Equal(t, "text", content[0].Type)
	assert.Equal(t, "image_url", content[1].Type)
	assert.True(t, strings.HasPrefix(content[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestOpenAIProvider_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	c := NewClient(NewOpenAIProvider(srv.URL, "m", "k", srv.Client()))
	_, err := c.Generate(context.Background(), "x")

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonRateLimited, reason)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	p, err = NewProvider(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(Config{Provider: "llama"})
	assert.Error(t, err)
}

func TestStatusError_TruncatesOnRuneBoundary(t *testing.T) {
	// The 197-byte cut lands inside the "ó" of the first "món".
	body := strings.Repeat("x", 195) + strings.Repeat("món ăn ", 20)
	err := &StatusError{Code: 500, Body: body}

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg), "message split a rune: %q", msg)
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.LessOrEqual(t, len(msg), len("http 500: ")+200)

	short := &StatusError{Code: 429, Status: "RESOURCE_EXHAUSTED", Body: "quota"}
	assert.Equal(t, "http 429 (RESOURCE_EXHAUSTED): quota", short.Error())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"fits", "hello", 10, "hello"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"backs off a split rune", "abcd" + "ờ" + "efg", 8, "abcd..."},
		{"keeps a whole rune", "abc" + "é" + "defgh", 8, "abcé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
