package session

import (
	"time"

	"imgharvest/pkg/extract"
	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/scroll"
)

// SkipReason says why a candidate was not retained
type SkipReason string

const (
	// ReasonNone means the image was downloaded and persisted
	ReasonNone         SkipReason = "none"
	ReasonFiltered     SkipReason = "filtered"
	ReasonFetchFailed  SkipReason = "fetch_failed"
	ReasonDecodeFailed SkipReason = "decode_failed"
	ReasonDuplicate    SkipReason = "duplicate"
	ReasonStoreFailed  SkipReason = "store_failed"
)

// Outcome is the result for one candidate
type Outcome struct {
	Index       int
	Candidate   extract.Candidate
	Fingerprint fingerprint.Fingerprint
	Reason      SkipReason
	Err         error
}

// Downloaded reports whether the candidate was retained
func (o Outcome) Downloaded() bool {
	return o.Reason == ReasonNone
}

// Report aggregates the outcomes of one query
type Report struct {
	Query      string
	Candidates int
	Downloaded int
	Skipped    int
	Reasons    map[SkipReason]int
	Outcomes   []Outcome
	Expansion  scroll.Result
	Duration   time.Duration
}

func newReport(query string) *Report {
	return &Report{
		Query:   query,
		Reasons: make(map[SkipReason]int),
	}
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Reasons[o.Reason]++
	if o.Downloaded() {
		r.Downloaded++
	} else {
		r.Skipped++
	}
}
