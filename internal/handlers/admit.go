package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/analytics"
	"github.com/crawlmeter/crawlmeter/internal/docstore"
	"github.com/crawlmeter/crawlmeter/internal/events"
	"github.com/crawlmeter/crawlmeter/internal/ledger"
	"github.com/crawlmeter/crawlmeter/internal/ratelimit"
)

// AdmitHandler exposes admission control over HTTP. The request is admitted,
// charged, and recorded in one round trip; denials map to 429 and store
// failures to 500.
type AdmitHandler struct {
	control              *ratelimit.Control
	publishUsageRecorded events.Publish[analytics.UsageRecordedEvent]
	logger               *zap.Logger
}

// NewAdmitHandler creates the admission handler.
func NewAdmitHandler(
	control *ratelimit.Control,
	publishUsageRecorded events.Publish[analytics.UsageRecordedEvent],
	logger *zap.Logger,
) *AdmitHandler {
	return &AdmitHandler{
		control:              control,
		publishUsageRecorded: publishUsageRecorded,
		logger:               logger,
	}
}

// Admit checks the supplied policies for the subject and, when all have
// capacity, finalizes a usage record with the requested outcome and charge.
func (h *AdmitHandler) Admit(ctx context.Context, req *AdmitRequest) (*AdmitResponse, error) {
	if req.Body.Subject == "" {
		return nil, huma.Error422UnprocessableEntity("subject is required")
	}

	if len(req.Body.Policies) == 0 {
		return nil, huma.Error422UnprocessableEntity("at least one policy is required")
	}

	policies := make([]ratelimit.Policy, 0, len(req.Body.Policies))

	for _, p := range req.Body.Policies {
		policy, err := ratelimit.NewPolicy(p.Occurrence, time.Duration(p.PeriodSeconds*float64(time.Second)))
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		policies = append(policies, policy)
	}

	handle, err := h.control.Admit(ctx, req.Body.Subject, req.Body.Tags, policies)
	if err != nil {
		return nil, h.admissionError(err)
	}

	status := ledger.Status(req.Body.Status)

	entry, err := handle.Finalize(ctx, ledger.Finalize{
		Status:       status,
		ChargeAmount: req.Body.ChargeAmount,
	})
	if err != nil {
		h.logger.Error("failed to persist usage record",
			zap.String("subject", req.Body.Subject),
			zap.Error(err),
		)

		return nil, huma.Error500InternalServerError("failed to persist usage record")
	}

	resp := &AdmitResponse{}
	resp.Body.UID = req.Body.Subject
	resp.Body.Tags = ledger.NormalizeTags(req.Body.Tags)
	resp.Body.Status = string(ledger.StatusSuccess)

	if entry != nil {
		resp.Body.RecordID = entry.ID
		resp.Body.Status = string(entry.Status)
		resp.Body.ChargeAmount = entry.ChargeAmount
		resp.Body.CreatedAt = entry.CreatedAt

		h.publishUsage(entry)
	}

	return resp, nil
}

func (h *AdmitHandler) publishUsage(entry *ledger.Entry) {
	event := &analytics.UsageRecordedEvent{
		EntryID:      entry.ID,
		UID:          entry.UID,
		Tags:         entry.Tags,
		Status:       string(entry.Status),
		ChargeAmount: entry.ChargeAmount,
		RecordedAt:   entry.CreatedAt,
	}

	if err := h.publishUsageRecorded(event); err != nil {
		h.logger.Error("failed to publish usage event",
			zap.String("entryId", entry.ID),
			zap.Error(err),
		)
	}
}

func (h *AdmitHandler) admissionError(err error) error {
	var denied *ratelimit.Error
	if errors.As(err, &denied) {
		return huma.Error429TooManyRequests(
			fmt.Sprintf("rate limit exceeded, retry after %ds", denied.Seconds()))
	}

	if docstore.IsConfigError(err) {
		h.logger.Error("store misconfigured", zap.Error(err))
	} else {
		h.logger.Error("admission check failed", zap.Error(err))
	}

	return huma.Error500InternalServerError("internal server error")
}
