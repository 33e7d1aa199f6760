package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ubuygold/ledgerpool/internal/gateway"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/pool"
	"github.com/ubuygold/ledgerpool/internal/provider"
	"github.com/ubuygold/ledgerpool/internal/provider/elevenlabs"
)

// MaxAudioBytes bounds uploaded test audio.
const MaxAudioBytes = 25 << 20

// AccountService is the account administration surface of the pool.
type AccountService interface {
	ListAccountsStatus(ctx context.Context, provider model.Provider) ([]pool.AccountSummary, error)
	ProviderStats(ctx context.Context) ([]pool.ProviderStat, error)
	AddAccount(ctx context.Context, req pool.AddAccountRequest) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	UpdateAccount(ctx context.Context, id string, patch pool.AccountPatch) (*model.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	TestAccount(ctx context.Context, id string) (*model.Account, error)
}

// Gateway runs pooled provider calls.
type Gateway interface {
	TranscribeVoice(ctx context.Context, audio []byte, filename string) (*pool.Result[*gateway.Transcription], error)
	TranscribeWithAssemblyAI(ctx context.Context, audio []byte) (*pool.Result[*gateway.Transcription], error)
	SynthesizeSpeech(ctx context.Context, text string) (*pool.Result[*elevenlabs.Speech], error)
	ParseTransaction(ctx context.Context, message string, categories []gateway.Category) (*pool.Result[*gateway.TransactionParse], error)
	ListVoices(ctx context.Context, accountID string) ([]elevenlabs.Voice, error)
}

type TTSRequest struct {
	Text string `json:"text" binding:"required"`
}

type ParseRequest struct {
	Message    string             `json:"message" binding:"required"`
	Categories []gateway.Category `json:"categories"`
}

type Handler struct {
	accounts AccountService
	gateway  Gateway
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(accounts AccountService, gw Gateway, logger *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		gateway:  gw,
		logger:   logger.With("component", "admin"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) ListAccountsHandler(c *gin.Context) {
	summaries, err := h.accounts.ListAccountsStatus(c.Request.Context(), model.Provider(c.Query("provider")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) StatsHandler(c *gin.Context) {
	stats, err := h.accounts.ProviderStats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) CreateAccountHandler(c *gin.Context) {
	var req pool.AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	account, err := h.accounts.AddAccount(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pool.Summarize(account, h.now()))
}

func (h *Handler) GetAccountHandler(c *gin.Context) {
	account, err := h.accounts.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool.Summarize(account, h.now()))
}

func (h *Handler) UpdateAccountHandler(c *gin.Context) {
	var patch pool.AccountPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	account, err := h.accounts.UpdateAccount(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool.Summarize(account, h.now()))
}

func (h *Handler) DeleteAccountHandler(c *gin.Context) {
	if err := h.accounts.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

// TestAccountHandler reports a failed health check in the body, not the status code.
func (h *Handler) TestAccountHandler(c *gin.Context) {
	account, err := h.accounts.TestAccount(c.Request.Context(), c.Param("id"))
	if account == nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"success": err == nil, "account": pool.Summarize(account, h.now())}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListVoicesHandler(c *gin.Context) {
	voices, err := h.gateway.ListVoices(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

func (h *Handler) TestTranscriptionHandler(c *gin.Context) {
	target := model.Provider(c.DefaultQuery("provider", string(model.ProviderSpeechmatics)))
	if target != model.ProviderSpeechmatics && target != model.ProviderAssemblyAI {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be speechmatics or assemblyai"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAudioBytes+1<<20)
	header, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Audio file exceeds 25 MB"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file is required"})
		return
	}
	if header.Size > MaxAudioBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Audio file exceeds 25 MB"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var result *pool.Result[*gateway.Transcription]
	if target == model.ProviderAssemblyAI {
		result, err = h.gateway.TranscribeWithAssemblyAI(c.Request.Context(), audio)
	} else {
		result, err = h.gateway.TranscribeVoice(c.Request.Context(), audio, header.Filename)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) TestTTSHandler(c *gin.Context) {
	var req TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	result, err := h.gateway.SynthesizeSpeech(c.Request.Context(), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("X-Account-Used", result.AccountUsed)
	c.Data(http.StatusOK, result.Data.ContentType, result.Data.Audio)
}

func (h *Handler) TestParseHandler(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	result, err := h.gateway.ParseTransaction(c.Request.Context(), req.Message, req.Categories)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeError maps pool and provider failures onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pool.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, pool.ErrDuplicateCredential):
		c.JSON(http.StatusConflict, gin.H{"error": "An account with this API key already exists"})
	case errors.Is(err, pool.ErrNoAccountAvailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	case errors.Is(err, pool.ErrInvalidInput),
		errors.Is(err, pool.ErrInvalidStatus),
		errors.Is(err, pool.ErrUnknownProvider),
		errors.Is(err, pool.ErrInvalidCredential):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pool.ErrValidationFailed),
		errors.Is(err, pool.ErrProviderCallFailed),
		errors.Is(err, provider.ErrMalformedResponse),
		errors.As(err, new(*provider.StatusError)):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Admin request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
