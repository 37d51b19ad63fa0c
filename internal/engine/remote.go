package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/config"
	"github.com/obiente/translate/batchscribe/internal/ratelimit"
	"github.com/obiente/translate/batchscribe/internal/retry"
)

// remoteFormats are the extensions the transcription endpoint accepts.
var remoteFormats = map[string]struct{}{
	".flac": {}, ".m4a": {}, ".mp3": {}, ".mp4": {}, ".mpeg": {},
	".mpga": {}, ".oga": {}, ".ogg": {}, ".wav": {}, ".webm": {},
}

const defaultMaxUpload = 25 << 20

// RemoteEngine uploads files to an OpenAI-compatible /audio/transcriptions endpoint.
// Every network attempt passes the rate limiter; transient failures are retried.
type RemoteEngine struct {
	apiKey    string
	endpoint  string
	model     string
	language  string
	maxUpload int64

	client  *http.Client
	limiter *ratelimit.Limiter
	policy  retry.Policy
	log     zerolog.Logger
}

type transcriptionResp struct {
	Text string `json:"text"`
}

type apiErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewRemote(cfg config.EngineConfig, log zerolog.Logger) (*RemoteEngine, error) {
	return NewRemoteForTests(cfg, log, ratelimit.New(cfg.RatePerSecond), nil)
}

// NewRemoteForTests builds a RemoteEngine with an injected limiter and backoff sleep.
func NewRemoteForTests(cfg config.EngineConfig, log zerolog.Logger, limiter *ratelimit.Limiter, sleep func(context.Context, time.Duration) error) (*RemoteEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("remote engine: missing API key")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &RemoteEngine{
		apiKey:    cfg.APIKey,
		endpoint:  base + "/audio/transcriptions",
		model:     model,
		language:  cfg.Language,
		maxUpload: maxUpload,
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Jitter:      cfg.Jitter,
			Sleep:       sleep,
		},
		log: log.With().Str("component", "engine.remote").Str("model", model).Logger(),
	}, nil
}

func (e *RemoteEngine) Name() string { return "remote:" + e.model }

func (e *RemoteEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *RemoteEngine) Transcribe(ctx context.Context, path string) (string, error) {
	if err := e.validate(path); err != nil {
		return "", err
	}

	p := e.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Dur("delay", delay).Msg("retrying transcription")
	}
	return retry.Do(ctx, p, func(ctx context.Context) (string, error) {
		if err := e.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		// an attempt that has started runs to completion
		return e.attempt(context.WithoutCancel(ctx), path)
	}, IsTransient)
}

// validate runs the local checks that never need a network call.
func (e *RemoteEngine) validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return newError(ErrNotFound, path, "", err)
	}
	if info.IsDir() {
		return newError(ErrUnsupportedFormat, path, "is a directory", nil)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := remoteFormats[ext]; !ok {
		return newError(ErrUnsupportedFormat, path, fmt.Sprintf("extension %q not accepted by remote backend", ext), nil)
	}
	if info.Size() == 0 {
		return newError(ErrUnsupportedFormat, path, "empty file", nil)
	}
	if info.Size() > e.maxUpload {
		return newError(ErrUnsupportedFormat, path, fmt.Sprintf("file is %d bytes, limit %d", info.Size(), e.maxUpload), nil)
	}
	return nil
}

func (e *RemoteEngine) attempt(ctx context.Context, path string) (string, error) {
	body, contentType, err := e.multipartBody(path)
	if err != nil {
		return "", newError(ErrNotFound, path, "read file", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, body)
	if err != nil {
		return "", newError(ErrTransientBackend, path, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", newError(ErrTransientBackend, path, "request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", newError(ErrTransientBackend, path, "read response", err)
	}
	e.log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("remote response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newError(classifyStatus(resp.StatusCode), path, fmt.Sprintf("http %d: %s", resp.StatusCode, apiMessage(raw)), nil)
	}

	var tr transcriptionResp
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", newError(ErrTransientBackend, path, "decode response", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (e *RemoteEngine) multipartBody(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", e.model); err != nil {
		return nil, "", err
	}
	if e.language != "" && e.language != "auto" {
		if err := mw.WriteField("language", e.language); err != nil {
			return nil, "", err
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return ErrUnsupportedFormat
	default:
		return ErrTransientBackend
	}
}

func apiMessage(raw []byte) string {
	var ae apiErrorResp
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if r := []rune(msg); len(r) > 200 {
		msg = string(r[:200])
	}
	if msg == "" {
		return "empty body"
	}
	return msg
}
