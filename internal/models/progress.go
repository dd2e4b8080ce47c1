package models

import "time"

type SectionStatus string

const (
	StatusNotStarted SectionStatus = "not_started"
	StatusInProgress SectionStatus = "in_progress"
	StatusCompleted  SectionStatus = "completed"
	StatusValidated  SectionStatus = "validated"
)

func (s SectionStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusValidated:
		return true
	}
	return false
}

// IsDone reports whether the section counts towards the completed total.
func (s SectionStatus) IsDone() bool {
	return s == StatusCompleted || s == StatusValidated
}

// SectionProgress tracks how far one proposal section has come.
type SectionProgress struct {
	Status            SectionStatus `json:"status"`
	CompletionPercent int           `json:"completionPercentage"`
	RequiredFields    []string      `json:"requiredFields,omitempty"`
	CompletedFields   []string      `json:"completedFields,omitempty"`
	WordCount         *int          `json:"wordCount,omitempty"`
	WordLimit         *int          `json:"wordLimit,omitempty"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// SectionProgressUpdate is a partial update; nil members are left untouched.
type SectionProgressUpdate struct {
	Status            *SectionStatus
	CompletionPercent *int
	RequiredFields    []string
	CompletedFields   []string
	WordCount         *int
	WordLimit         *int
}

func (p *SectionProgress) Clone() *SectionProgress {
	if p == nil {
		return nil
	}
	out := *p
	out.RequiredFields = append([]string(nil), p.RequiredFields...)
	out.CompletedFields = append([]string(nil), p.CompletedFields...)
	if p.WordCount != nil {
		n := *p.WordCount
		out.WordCount = &n
	}
	if p.WordLimit != nil {
		n := *p.WordLimit
		out.WordLimit = &n
	}
	return &out
}

// Apply merges u into p and stamps UpdatedAt.
func (p *SectionProgress) Apply(u SectionProgressUpdate, now time.Time) {
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.CompletionPercent != nil {
		pct := *u.CompletionPercent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		p.CompletionPercent = pct
	}
	if u.RequiredFields != nil {
		p.RequiredFields = append([]string(nil), u.RequiredFields...)
	}
	if u.CompletedFields != nil {
		p.CompletedFields = append([]string(nil), u.CompletedFields...)
	}
	if u.WordCount != nil {
		n := *u.WordCount
		p.WordCount = &n
	}
	if u.WordLimit != nil {
		n := *u.WordLimit
		p.WordLimit = &n
	}
	p.UpdatedAt = now
}
