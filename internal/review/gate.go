// Package review runs model-backed review gates over the workflow state and
// decides which node a workflow moves to next.
package review

import (
	"strings"

	"launchpad/internal/state"
	"launchpad/pkg/templates"
)

// DefaultThreshold is the rejection count at which a gate approves regardless of feedback.
const DefaultThreshold = 3

// Verdict tokens
const (
	TokenApproved = "APPROVED"
	TokenRejected = "REJECTED"
)

// Decision labels used in logs and metrics
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionForced   = "forced"
	DecisionError    = "error"
)

// Gate describes one review loop: which prompt to send, where the counter and
// feedback live in the state, and which node each verdict leads to.
type Gate struct {
	Name     string
	Template string

	Counter  func(*state.State) *int
	Feedback func(*state.State) *string
	Data     func(*state.State) any

	// Approved reports whether feedback passes the gate.
	Approved func(feedback string) bool

	Proceed string
	Revise  string

	Threshold int

	// ResetOnForce zeroes the counter when the threshold forces approval.
	ResetOnForce bool
}

// Next returns the node the workflow moves to. forced is true when the
// rejection threshold approved the gate regardless of feedback.
func (g *Gate) Next(st *state.State) (next string, forced bool) {
	counter := g.Counter(st)
	if *counter >= g.Threshold {
		if g.ResetOnForce {
			*counter = 0
		}
		return g.Proceed, true
	}
	if g.Approved(*g.Feedback(st)) {
		return g.Proceed, false
	}
	return g.Revise, false
}

// Prompt renders the gate's prompt for st.
func (g *Gate) Prompt(st *state.State) (string, error) {
	return templates.Render(g.Template, g.Data(st))
}

func containsApproved(feedback string) bool {
	return strings.Contains(feedback, TokenApproved)
}

func lacksRejected(feedback string) bool {
	return !strings.Contains(feedback, TokenRejected)
}

func threshold(n int) int {
	if n <= 0 {
		return DefaultThreshold
	}
	return n
}

type designData struct {
	Requirements string
	Story        string
	Design       string
}

type codeData struct {
	Requirements string
	Design       string
	Code         map[string]string
}

func codeDataOf(st *state.State) any {
	return codeData{Requirements: st.Requirements, Design: st.Design, Code: st.GeneratedCode}
}

// DesignGate reviews the design document and loops back to Design until
// approved. Its threshold is always DefaultThreshold.
func DesignGate() *Gate {
	return &Gate{
		Name:     "design",
		Template: templates.DesignReview,
		Counter:  func(s *state.State) *int { return &s.DesignRejections },
		Feedback: func(s *state.State) *string { return &s.DesignFeedback },
		Data: func(s *state.State) any {
			return designData{Requirements: s.Requirements, Story: s.Story, Design: s.Design}
		},
		Approved:  containsApproved,
		Proceed:   state.NodeGenerateCode,
		Revise:    state.NodeDesign,
		Threshold: DefaultThreshold,
	}
}

// CodeGate reviews generated code before the security review.
func CodeGate(max int) *Gate {
	return &Gate{
		Name:         "code",
		Template:     templates.CodeReview,
		Counter:      func(s *state.State) *int { return &s.CodeRejections },
		Feedback:     func(s *state.State) *string { return &s.CodeFeedback },
		Data:         codeDataOf,
		Approved:     containsApproved,
		Proceed:      state.NodeSecurityReview,
		Revise:       state.NodeFixCode,
		Threshold:    threshold(max),
		ResetOnForce: true,
	}
}

// SecurityGate reviews generated code for vulnerabilities. Only an explicit
// REJECTED sends the code back.
func SecurityGate(max int) *Gate {
	return &Gate{
		Name:         "security",
		Template:     templates.SecurityReview,
		Counter:      func(s *state.State) *int { return &s.SecurityRejections },
		Feedback:     func(s *state.State) *string { return &s.SecurityFeedback },
		Data:         codeDataOf,
		Approved:     lacksRejected,
		Proceed:      state.NodeWriteTestCases,
		Revise:       state.NodeFixSecurity,
		Threshold:    threshold(max),
		ResetOnForce: true,
	}
}

// GateByName returns the gate called name, or nil. max sets the threshold of
// the code and security gates; the design gate ignores it.
func GateByName(name string, max int) *Gate {
	switch name {
	case "design":
		return DesignGate()
	case "code":
		return CodeGate(max)
	case "security":
		return SecurityGate(max)
	}
	return nil
}

// ShouldContinue decides the design loop's next node, forcing approval once
// the design counter reaches DefaultThreshold.
func ShouldContinue(st *state.State) string {
	next, _ := DesignGate().Next(st)
	return next
}
