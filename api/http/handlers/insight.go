package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/veranima/insight"
	"github.com/veranima/insight/api/http/presenter"
)

// InsightService is the part of insight.Service the handlers call.
type InsightService interface {
	GetInsight(ctx context.Context, journalText, stageLabel string) (string, error)
	StreamInsight(ctx context.Context, journalText, stageLabel string) (<-chan insight.Chunk, error)
	Provider() string
}

const (
	msgInvalidBody     = "Invalid JSON body"
	msgMissingFields   = "Missing journalEntry or currentStage"
	msgGenerateFailed  = "Failed to generate insight"
	msgUnexpectedError = "Internal server error"
)

// InsightHandler serves buffered and streamed insights.
type InsightHandler struct {
	svc           InsightService
	log           logrus.FieldLogger
	streamTimeout time.Duration
}

// HandlerOption configures an InsightHandler.
type HandlerOption func(*InsightHandler)

// WithStreamTimeout bounds the lifetime of each stream. Zero leaves it unbounded.
func WithStreamTimeout(d time.Duration) HandlerOption {
	return func(h *InsightHandler) {
		h.streamTimeout = d
	}
}

func NewInsightHandler(svc InsightService, log logrus.FieldLogger, opts ...HandlerOption) *InsightHandler {
	h := &InsightHandler{svc: svc, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Generate returns the complete insight as {"insight": "..."}.
func (h *InsightHandler) Generate(c *fiber.Ctx) error {
	var req insight.Request
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, msgInvalidBody)
	}

	text, err := h.svc.GetInsight(c.UserContext(), req.JournalEntry, req.CurrentStage)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.JSON(c, http.StatusOK, insight.Response{Insight: text})
}

// Stream answers with text/event-stream, one event per fragment:
//
//	data: {"content":"...","done":false}
//
// followed by data: {"done":true}, or data: {"error":"...","done":true} when
// the backend fails mid-stream. Failures before the first fragment are
// answered with a JSON error instead.
func (h *InsightHandler) Stream(c *fiber.Ctx) error {
	var req insight.Request
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, msgInvalidBody)
	}

	// The body is written after this handler returns, so the stream
	// gets its own context; a failed write cancels it. fasthttp does not
	// report a client that goes away, so a backend that stalls between
	// fragments is only stopped by the stream timeout.
	ctx, cancel := h.streamContext(c.UserContext())

	chunks, err := h.svc.StreamInsight(ctx, req.JournalEntry, req.CurrentStage)
	if err != nil {
		cancel()
		return h.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for chunk := range chunks {
			if chunk.Err != nil {
				_ = writeEvent(w, endEvent{Error: chunk.Err.Error(), Done: true})
				return
			}
			if err := writeEvent(w, fragmentEvent{Content: chunk.Text}); err != nil {
				h.log.WithError(err).Debug("client disconnected, cancelling stream")
				return
			}
		}
		_ = writeEvent(w, endEvent{Done: true})
	})
	return nil
}

func (h *InsightHandler) streamContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.streamTimeout > 0 {
		return context.WithTimeout(parent, h.streamTimeout)
	}
	return context.WithCancel(parent)
}

// Schema describes the request and response payloads.
func (h *InsightHandler) Schema(c *fiber.Ctx) error {
	return presenter.JSON(c, http.StatusOK, fiber.Map{
		"request":  insight.RequestSchema(),
		"response": insight.ResponseSchema(),
	})
}

func (h *InsightHandler) fail(c *fiber.Ctx, err error) error {
	var providerErr *insight.ProviderError

	switch {
	case errors.Is(err, insight.ErrValidation):
		return presenter.ErrorWithDetails(c, http.StatusBadRequest, msgMissingFields, err, 0)
	case errors.As(err, &providerErr):
		return presenter.ErrorWithDetails(c, http.StatusBadGateway, msgGenerateFailed, err, providerErr.StatusCode)
	default:
		h.log.WithError(err).Error("insight request failed")
		return presenter.Error(c, http.StatusInternalServerError, msgUnexpectedError)
	}
}

type fragmentEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

type endEvent struct {
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done"`
}

func writeEvent(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
