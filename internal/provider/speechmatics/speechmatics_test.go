package speechmatics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

var fastPolling = provider.Polling{Interval: time.Millisecond, Attempts: 3}

func testAccount() *model.Account {
	return &model.Account{
		Provider:   model.ProviderSpeechmatics,
		Credential: "sm-test-key",
		Settings:   model.ProviderSettings{Language: "bn", OperatingPoint: "enhanced"},
	}
}

func TestTranscribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sm-test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("data_file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "voice.ogg", header.Filename)
		assert.Equal(t, "ogg-bytes", string(data))

		var cfg jobConfig
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("config")), &cfg))
		assert.Equal(t, "transcription", cfg.Type)
		assert.Equal(t, "bn", cfg.TranscriptionConfig.Language)
		assert.Equal(t, "enhanced", cfg.TranscriptionConfig.OperatingPoint)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"job-1"}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job":{"id":"job-1","status":"done","duration":7}}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-1/transcript", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json-v2", r.URL.Query().Get("format"))
		w.Write([]byte(`{
			"metadata": {"transcription_config": {"language": "bn"}},
			"results": [
				{"alternatives": [{"content": "বাজার"}]},
				{"alternatives": []},
				{"alternatives": [{"content": "৫০০"}]},
				{"alternatives": [{"content": "টাকা"}]}
			]
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	transcript, err := New(server.URL, WithPolling(fastPolling)).Transcribe(context.Background(), testAccount(), []byte("ogg-bytes"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "বাজার ৫০০ টাকা", transcript.Text)
	assert.Equal(t, 7.0, transcript.Duration)
	assert.Equal(t, "bn", transcript.Language)
	assert.Equal(t, "job-1", transcript.JobID)
}

func TestTranscribe_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"job-2"}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job":{"status":"rejected","errors":[{"message":"unsupported format"}]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := New(server.URL, WithPolling(fastPolling)).Transcribe(context.Background(), testAccount(), []byte("x"), "")
	assert.ErrorIs(t, err, provider.ErrJobFailed)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestTranscribe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := New(server.URL).Transcribe(context.Background(), testAccount(), []byte("x"), "voice.ogg")
	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"job-3"}`))
	})
	mux.HandleFunc("GET /v2/jobs/job-3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job":{"status":"running"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	client := New(server.URL, WithPolling(provider.Polling{Interval: time.Second, Attempts: 10}))
	_, err := client.Transcribe(ctx, testAccount(), []byte("x"), "voice.ogg")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/jobs", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := New(server.URL).Validate(context.Background(), testAccount())
	assert.ErrorIs(t, err, provider.ErrInvalidCredential)
}
