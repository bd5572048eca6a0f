package ingest

import (
	"fmt"
	"strings"
	"time"
)

// State is the position of a file in the pipeline.
type State string

const (
	StatePending       State = "pending"
	StateTextExtracted State = "text_extracted"
	StateDataExtracted State = "data_extracted"
	StateNormalized    State = "normalized"
	StateDeduplicated  State = "deduplicated"
	StateArchived      State = "archived"
	StateFailed        State = "failed"
)

// Disposition records what happened to an invoice's data.
type Disposition string

const (
	DispositionStored    Disposition = "stored"
	DispositionDuplicate Disposition = "duplicate"
)

// Outcome is the result of processing one file.
type Outcome struct {
	File          string      `json:"file"`
	State         State       `json:"state"`
	FailedAt      State       `json:"failed_at,omitempty"`
	Disposition   Disposition `json:"disposition,omitempty"`
	Entity        string      `json:"entity,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	Lines         int         `json:"lines"`
	Err           error       `json:"-"`
	Error         string      `json:"error,omitempty"`
}

// Line renders the outcome for operators.
func (o Outcome) Line() string {
	switch {
	case o.State == StateFailed:
		return fmt.Sprintf("Error processing '%s': %v", o.File, o.Err)
	case o.Disposition == DispositionDuplicate:
		return fmt.Sprintf("'%s' (invoice '%s') already exists and was skipped.", o.File, o.InvoiceNumber)
	default:
		return fmt.Sprintf("'%s' processed and saved (%d lines for %s).", o.File, o.Lines, o.Entity)
	}
}

// NoPendingMessage is the report text of a run without pending files.
const NoPendingMessage = "No pending invoices to process."

// Report summarizes a batch run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
	Stored     int       `json:"stored"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	// Remaining counts files left pending by a cancelled run.
	Remaining int    `json:"remaining"`
	Summary   string `json:"summary"`
}

func (r *Report) add(o Outcome) {
	switch {
	case o.State == StateFailed:
		r.Failed++
	case o.Disposition == DispositionDuplicate:
		r.Duplicates++
	default:
		r.Stored++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Text joins the outcome lines, one per file.
func (r *Report) Text() string {
	if len(r.Outcomes) == 0 {
		if r.Remaining > 0 {
			return fmt.Sprintf("Cancelled with %d invoices still pending.", r.Remaining)
		}
		return NoPendingMessage
	}
	lines := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		lines = append(lines, o.Line())
	}
	return strings.Join(lines, "\n")
}
