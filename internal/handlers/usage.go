package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/ledger"
)

// UsageHandler lists recorded usage for a subject.
type UsageHandler struct {
	ledger *ledger.Service
	logger *zap.Logger
}

// NewUsageHandler creates the usage handler.
func NewUsageHandler(ledgerSvc *ledger.Service, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{ledger: ledgerSvc, logger: logger}
}

// List returns the most recent entries for a subject, newest first, with the
// subject's total entry count.
func (h *UsageHandler) List(ctx context.Context, req *UsageRequest) (*UsageResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	entries, err := h.ledger.BySubject(ctx, req.UID, limit)
	if err != nil {
		h.logger.Error("failed to list usage", zap.String("uid", req.UID), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to list usage")
	}

	total, err := h.ledger.CountBySubject(ctx, req.UID)
	if err != nil {
		h.logger.Error("failed to count usage", zap.String("uid", req.UID), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to count usage")
	}

	resp := &UsageResponse{}
	resp.Body.UID = req.UID
	resp.Body.Total = total
	resp.Body.Entries = make([]UsageEntry, len(entries))

	for i, e := range entries {
		resp.Body.Entries[i] = UsageEntry{
			RecordID:     e.ID,
			Tags:         e.Tags,
			Status:       string(e.Status),
			ChargeAmount: e.ChargeAmount,
			CreatedAt:    e.CreatedAt,
		}
	}

	return resp, nil
}
