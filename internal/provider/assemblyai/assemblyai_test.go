package assemblyai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

var fastPolling = provider.Polling{Interval: time.Millisecond, Attempts: 5}

func testAccount() *model.Account {
	return &model.Account{Provider: model.ProviderAssemblyAI, Credential: "aai-test-key"}
}

func TestCost(t *testing.T) {
	assert.True(t, Cost(60).Equal(decimal.RequireFromString("0.0019998")))
	assert.True(t, Cost(0).IsZero())
}

func TestTranscribe(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "aai-test-key", r.Header.Get("authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "audio-bytes", string(body))
		w.Write([]byte(`{"upload_url":"https://cdn.example/audio"}`))
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.example/audio", payload["audio_url"])
		assert.Equal(t, "en", payload["language_code"])
		assert.Equal(t, true, payload["punctuate"])
		w.Write([]byte(`{"id":"tr-1","status":"queued"}`))
	})
	mux.HandleFunc("/v2/transcript/tr-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			w.Write([]byte(`{"id":"tr-1","status":"processing"}`))
			return
		}
		w.Write([]byte(`{"id":"tr-1","status":"completed","text":"lunch 250 taka","audio_duration":12.5,"confidence":0.93,"language_code":"en"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(server.URL, WithPolling(fastPolling))
	transcript, err := client.Transcribe(context.Background(), testAccount(), []byte("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "lunch 250 taka", transcript.Text)
	assert.Equal(t, 12.5, transcript.AudioDuration)
	assert.Equal(t, int32(2), polls.Load())
}

func TestTranscribe_JobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"upload_url":"u"}`))
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"tr-2"}`))
	})
	mux.HandleFunc("/v2/transcript/tr-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"audio too short"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := New(server.URL, WithPolling(fastPolling)).Transcribe(context.Background(), testAccount(), []byte("a"))
	assert.ErrorIs(t, err, provider.ErrJobFailed)
	assert.Contains(t, err.Error(), "audio too short")
}

func TestTranscribe_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"upload_url":"u"}`))
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"tr-3"}`))
	})
	mux.HandleFunc("/v2/transcript/tr-3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"processing"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := New(server.URL, WithPolling(fastPolling)).Transcribe(context.Background(), testAccount(), []byte("a"))
	assert.ErrorIs(t, err, provider.ErrJobFailed)
	assert.Contains(t, err.Error(), "timeout")
}

func TestTranscribe_MissingUploadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := New(server.URL).Transcribe(context.Background(), testAccount(), []byte("a"))
	assert.ErrorIs(t, err, provider.ErrMalformedResponse)
}

func TestValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/transcript", r.URL.Path)
		if r.Header.Get("authorization") != "aai-test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"transcripts":[]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	assert.NoError(t, client.Validate(context.Background(), testAccount()))

	bad := testAccount()
	bad.Credential = "wrong"
	assert.ErrorIs(t, client.Validate(context.Background(), bad), provider.ErrInvalidCredential)
}
