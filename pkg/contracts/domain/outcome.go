package domain

import (
	"time"
)

// OutcomeStatus is the terminal state reported for one business date.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the per-date result streamed to the caller of a batch.
type Outcome struct {
	BatchID string        `json:"batch_id,omitempty"`
	Date    time.Time     `json:"date"`
	Status  OutcomeStatus `json:"status"`
	Detail  string        `json:"detail"`
	// Output is the workbook path for successful and skipped dates.
	Output   string        `json:"output,omitempty"`
	Rows     int           `json:"rows,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ISODate is the wire layout of calendar dates.
const ISODate = "2006-01-02"

// BatchRequest is the configuration a front-end hands to the pipeline.
// Dates are calendar dates in yyyy-MM-dd form.
type BatchRequest struct {
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	OutputDir  string `json:"output_dir,omitempty"`
	DateFormat string `json:"date_format,omitempty" validate:"omitempty,max=64,datepattern"`

	// Optional per-batch overrides of the configured download policy.
	SkipWeekends     *bool `json:"skip_weekends,omitempty"`
	KeepIntermediate *bool `json:"keep_intermediate,omitempty"`
}

// Dates parses the request's start and end dates as UTC calendar days.
func (r BatchRequest) Dates() (start, end time.Time, err error) {
	if start, err = time.Parse(ISODate, r.StartDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = time.Parse(ISODate, r.EndDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// BatchSummary aggregates the outcomes of one batch run.
type BatchSummary struct {
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// Add folds one outcome into the summary.
func (s *BatchSummary) Add(o Outcome) {
	s.Total++
	switch o.Status {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}
