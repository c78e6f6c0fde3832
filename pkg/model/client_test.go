package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

func TestClient_Generate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello back"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	out, err := client.Generate(context.Background(), "hello", "meta/llama-3.1-405b-instruct", 0.7)
	require.NoError(t, err)

	assert.Equal(t, "hello back", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "meta/llama-3.1-405b-instruct", gotReq.Model)
	assert.InDelta(t, 0.7, gotReq.Temperature, 0.001)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestClient_Generate_ClampsTemperature(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k")
	_, err := client.Generate(context.Background(), "p", "m", 3.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, gotReq.Temperature, 0.001)
}

func TestClient_Generate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k")
	_, err := client.Generate(context.Background(), "p", "m", 0.5)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeModelUnavailable, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestClient_Generate_NoKey(t *testing.T) {
	client := NewClient("http://unused", "")
	_, err := client.Generate(context.Background(), "p", "m", 0.5)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeModelUnavailable, errors.GetCode(err))
}

func TestClient_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k")
	_, err := client.Generate(context.Background(), "p", "m", 0.5)
	require.Error(t, err)
}

func TestGenerateFunc(t *testing.T) {
	gen := GenerateFunc(func(ctx context.Context, prompt, model string, temperature float64) (string, error) {
		return "scripted", nil
	})

	out, err := gen.Generate(context.Background(), "p", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, "scripted", out)
}

func TestErrorText(t *testing.T) {
	err := errors.New(errors.ErrCodeModelUnavailable, "down")
	assert.Contains(t, ErrorText(err), "Error calling LLM")
}
