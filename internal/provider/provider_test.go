package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse("p", response(http.StatusOK, "")))
	assert.NoError(t, CheckResponse("p", response(http.StatusCreated, "")))

	assert.ErrorIs(t, CheckResponse("p", response(http.StatusUnauthorized, "")), ErrInvalidCredential)
	assert.ErrorIs(t, CheckResponse("p", response(http.StatusForbidden, "")), ErrInvalidCredential)

	err := CheckResponse("p", response(http.StatusBadGateway, " upstream down \n"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "p: unexpected status 502: upstream down", err.Error())
	assert.NotErrorIs(t, err, ErrInvalidCredential)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}

func TestPollingWithDefaults(t *testing.T) {
	def := Polling{Interval: time.Second, Attempts: 60}
	assert.Equal(t, def, Polling{}.WithDefaults(def))
	assert.Equal(t, Polling{Interval: time.Millisecond, Attempts: 60}, Polling{Interval: time.Millisecond}.WithDefaults(def))
}
