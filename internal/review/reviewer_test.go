package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"launchpad/internal/llm"
	"launchpad/internal/metrics"
	"launchpad/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDesignReviewer_Loop(t *testing.T) {
	model := &llm.MockChatModel{Responses: []llm.ChatOut{
		{Text: "<think>\nno persistence layer\n</think>\nREJECTED\n1. Issue 1: no database"},
		{Text: "<think>ok</think>APPROVED"},
	}}
	d := NewDesignReviewer(model, quietLogger(), metrics.New(prometheus.NewRegistry()))
	st := &state.State{Requirements: "shop", Story: "buy", Design: "v1"}
	ctx := context.Background()

	if err := d.Review(ctx, st); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if st.DesignRejections != 1 {
		t.Errorf("Expected counter 1, got %d", st.DesignRejections)
	}
	if st.DesignFeedback != "REJECTED\n1. Issue 1: no database" {
		t.Errorf("Unexpected feedback: %q", st.DesignFeedback)
	}
	if next := d.Next(st); next != state.NodeDesign {
		t.Errorf("Expected %s, got %s", state.NodeDesign, next)
	}

	if err := d.Review(ctx, st); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if st.DesignFeedback != "APPROVED" {
		t.Errorf("Expected APPROVED, got %q", st.DesignFeedback)
	}
	if next := d.Next(st); next != state.NodeGenerateCode {
		t.Errorf("Expected %s, got %s", state.NodeGenerateCode, next)
	}

	if !strings.Contains(model.LastPrompt(), "shop") {
		t.Error("Expected prompt to carry the requirements")
	}
}

func TestDesignReviewer_ForcedApproval(t *testing.T) {
	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "REJECTED"}}}
	d := NewDesignReviewer(model, quietLogger(), nil)
	st := &state.State{Design: "v1"}

	var next string
	for i := 0; i < DefaultThreshold; i++ {
		if err := d.Review(context.Background(), st); err != nil {
			t.Fatalf("Review failed: %v", err)
		}
		next = d.Next(st)
	}

	if next != state.NodeGenerateCode {
		t.Errorf("Expected forced %s, got %s", state.NodeGenerateCode, next)
	}
	if st.DesignRejections != DefaultThreshold {
		t.Errorf("Expected counter %d, got %d", DefaultThreshold, st.DesignRejections)
	}
}

func TestReviewer_ModelError(t *testing.T) {
	boom := errors.New("provider down")
	r := NewReviewer(&llm.MockChatModel{Err: boom}, quietLogger(), nil)
	st := &state.State{DesignFeedback: "previous"}

	_, err := r.Review(context.Background(), DesignGate(), st)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped model error, got %v", err)
	}
	if st.DesignRejections != 1 {
		t.Errorf("Expected counter increment to stand, got %d", st.DesignRejections)
	}
	if st.DesignFeedback != "previous" {
		t.Errorf("Expected feedback untouched, got %q", st.DesignFeedback)
	}
}

func TestReviewer_RunCodeGate(t *testing.T) {
	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "APPROVED"}}}
	r := NewReviewer(model, quietLogger(), nil)
	st := &state.State{GeneratedCode: map[string]string{"app.py": "print('hi')"}}

	next, err := r.Run(context.Background(), CodeGate(0), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if next != state.NodeSecurityReview {
		t.Errorf("Expected %s, got %s", state.NodeSecurityReview, next)
	}
	if st.CodeFeedback != "APPROVED" || st.CodeRejections != 1 {
		t.Errorf("Unexpected state: feedback=%q counter=%d", st.CodeFeedback, st.CodeRejections)
	}
}
