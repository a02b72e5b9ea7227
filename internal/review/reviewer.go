package review

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"launchpad/internal/llm"
	"launchpad/internal/metrics"
	"launchpad/internal/state"
)

// Reviewer runs gates against a chat model.
type Reviewer struct {
	model   llm.ChatModel
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewReviewer creates a reviewer. logger and m may be nil.
func NewReviewer(model llm.ChatModel, logger *slog.Logger, m *metrics.Metrics) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{
		model:   model,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("launchpad/review"),
	}
}

// Review increments the gate's counter, asks the model for a verdict and stores
// the cleaned reply as the gate's feedback. The counter increment stands even
// when the model call fails.
func (r *Reviewer) Review(ctx context.Context, g *Gate, st *state.State) (string, error) {
	ctx, span := r.tracer.Start(ctx, "review."+g.Name)
	defer span.End()

	counter := g.Counter(st)
	*counter++
	span.SetAttributes(
		attribute.String("gate", g.Name),
		attribute.Int("attempt", *counter),
	)

	prompt, err := g.Prompt(st)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to render %s review prompt: %w", g.Name, err)
	}

	out, err := r.model.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.ReviewDecided(g.Name, DecisionError)
		r.logger.Error("review_failed", "gate", g.Name, "attempt", *counter, "error", err)
		return "", fmt.Errorf("%s review failed: %w", g.Name, err)
	}

	feedback := llm.CleanOutput(out.Text)
	*g.Feedback(st) = feedback

	r.logger.Info("review_completed", "gate", g.Name, "attempt", *counter, "feedback_length", len(feedback))
	return feedback, nil
}

// Decide picks the gate's next node, logging and counting the decision.
func (r *Reviewer) Decide(g *Gate, st *state.State) string {
	attempts := *g.Counter(st)
	next, forced := g.Next(st)

	decision := DecisionRejected
	switch {
	case forced:
		decision = DecisionForced
		r.logger.Warn("review_forced_approval", "gate", g.Name, "rejections", attempts, "threshold", g.Threshold)
	case next == g.Proceed:
		decision = DecisionApproved
	}

	r.metrics.ReviewDecided(g.Name, decision)
	r.logger.Info("review_decision", "gate", g.Name, "decision", decision, "next", next)
	return next
}

// Run reviews st and returns the next node.
func (r *Reviewer) Run(ctx context.Context, g *Gate, st *state.State) (string, error) {
	if _, err := r.Review(ctx, g, st); err != nil {
		return "", err
	}
	return r.Decide(g, st), nil
}

// DesignReviewer is the design review node.
type DesignReviewer struct {
	reviewer *Reviewer
	gate     *Gate
}

// NewDesignReviewer creates a design review node that forces approval after
// DefaultThreshold rejections.
func NewDesignReviewer(model llm.ChatModel, logger *slog.Logger, m *metrics.Metrics) *DesignReviewer {
	return &DesignReviewer{
		reviewer: NewReviewer(model, logger, m),
		gate:     DesignGate(),
	}
}

// Review sends the design to the model and stores the cleaned feedback in st.
func (d *DesignReviewer) Review(ctx context.Context, st *state.State) error {
	_, err := d.reviewer.Review(ctx, d.gate, st)
	return err
}

// Next returns Generate_Code or Design for st.
func (d *DesignReviewer) Next(st *state.State) string {
	return d.reviewer.Decide(d.gate, st)
}
