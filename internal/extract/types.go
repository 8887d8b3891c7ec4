// internal/extract/types.go
package extract

import (
	"fmt"
	"time"
)

// Common errors
var (
	ErrNilTemplate = fmt.Errorf("template cannot be nil")
	ErrInvalidPage = fmt.Errorf("invalid page model")
)

// Status classifies the outcome of one extraction attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Reason refines a non-success status so the dispatcher can decide whether
// another template is worth trying.
type Reason string

const (
	// ReasonNone marks a clean success.
	ReasonNone Reason = ""

	// ReasonNoContainer means the template's container selector matched
	// nothing: the template does not fit this page.
	ReasonNoContainer Reason = "no_container"

	// ReasonNoItems means a container was found but no valid item survived
	// field extraction and validation.
	ReasonNoItems Reason = "no_items"

	// ReasonLowConfidence means records were extracted but aggregate
	// confidence fell below the acceptance threshold.
	ReasonLowConfidence Reason = "low_confidence"

	// ReasonCountMismatch means the record count fell outside the
	// template's expected range.
	ReasonCountMismatch Reason = "count_mismatch"
)

// Candidate is one tentative extraction result. Candidates are created
// during extraction and discarded wholesale if the attempt is invalid.
type Candidate struct {
	Title          string            `json:"title"`
	Artist         string            `json:"artist,omitempty"`
	Rank           int               `json:"rank,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Confidence     float64           `json:"confidence"`
	TitleStrategy  string            `json:"title_strategy,omitempty"`
	ArtistStrategy string            `json:"artist_strategy,omitempty"`
	RawText        string            `json:"raw_text,omitempty"`
	Structure      string            `json:"structure,omitempty"`
}

// Attempt is one (page, template) extraction execution. It is terminal once
// scored: retries produce new attempts rather than mutating this one.
type Attempt struct {
	URL             string        `json:"url"`
	TemplateName    string        `json:"template"`
	TemplateVersion int           `json:"template_version"`
	Candidates      []Candidate   `json:"candidates"`
	Confidence      float64       `json:"confidence"`
	Status          Status        `json:"status"`
	Reason          Reason        `json:"reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// Succeeded reports whether the attempt ended in full success.
func (a *Attempt) Succeeded() bool {
	return a.Status == StatusSuccess
}
