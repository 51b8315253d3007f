package portals

import (
	"context"
	"log/slog"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Insight is what the external analysis collaborator derives from a
// snapshot. The engine never produces these itself, it only carries
// them.
type Insight struct {
	Summary   string    `json:"summary"`
	Alerts    []string  `json:"alerts"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// InsightGenerator is the boundary to that collaborator.
type InsightGenerator interface {
	Generate(ctx context.Context, snap Snapshot, delta Delta) (Insight, error)
}

// InsightChangeHandler feeds every changed snapshot through a generator
// and logs the outcome. A generator failure is logged and dropped, it
// must never disturb the sync that produced the snapshot.
type InsightChangeHandler struct {
	generator InsightGenerator
}

func NewInsightChangeHandler(generator InsightGenerator) *InsightChangeHandler {
	return &InsightChangeHandler{generator: generator}
}

func (h *InsightChangeHandler) HandleChange(ctx context.Context, conn Connection, snap Snapshot, delta Delta) {
	insight, err := h.generator.Generate(ctx, snap, delta)
	if err != nil {
		slog.WarnContext(ctx, "insight generation failed", "connection", conn.ID, "err", err)
		return
	}
	slog.InfoContext(ctx, "insight generated",
		"connection", conn.ID,
		"risk", insight.RiskLevel,
		"alerts", len(insight.Alerts),
		"summary", insight.Summary,
	)
}
