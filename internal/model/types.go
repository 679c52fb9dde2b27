package model

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const DefaultConcurrency = 2

type Account struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// JobState is the batch-wide progress record handed to observers. The JSON
// names are the wire names of the job-state event.
type JobState struct {
	Running     bool            `json:"running"`
	Total       int             `json:"accounts_num"`
	Remaining   int             `json:"jobs_left"`
	Concurrency int             `json:"concurrent"`
	ETASeconds  *uint64         `json:"time_left,omitempty"`
	Statuses    []AccountStatus `json:"account_status"`
}

type Tally struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Settings struct {
	Concurrency int `json:"concurrent" yaml:"concurrency"`
}

func DefaultSettings() Settings {
	return Settings{Concurrency: DefaultConcurrency}
}

func (s Settings) Normalize() Settings {
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	return s
}

// NewJobState returns the initial snapshot of a batch: everything pending.
func NewJobState(total, concurrency int) JobState {
	return JobState{
		Running:     true,
		Total:       total,
		Remaining:   total,
		Concurrency: concurrency,
		Statuses:    make([]AccountStatus, total),
	}
}

// Clone returns a snapshot that shares no memory with s.
func (s JobState) Clone() JobState {
	out := s
	if s.ETASeconds != nil {
		eta := *s.ETASeconds
		out.ETASeconds = &eta
	}
	if s.Statuses != nil {
		out.Statuses = append([]AccountStatus(nil), s.Statuses...)
	}
	return out
}

func (s JobState) Tally() Tally {
	return Tally{
		Pending:   lo.Count(s.Statuses, StatusPending),
		Running:   lo.Count(s.Statuses, StatusRunning),
		Succeeded: lo.Count(s.Statuses, StatusSucceeded),
		Failed:    lo.Count(s.Statuses, StatusFailed),
	}
}

// Validate checks the invariants observers rely on.
func (s JobState) Validate() error {
	if s.Running && len(s.Statuses) != s.Total {
		return fmt.Errorf("status count %d does not match total %d", len(s.Statuses), s.Total)
	}
	if s.Remaining < 0 || s.Remaining > s.Total {
		return fmt.Errorf("remaining %d outside [0, %d]", s.Remaining, s.Total)
	}
	notDone := lo.CountBy(s.Statuses, func(st AccountStatus) bool { return !st.Terminal() })
	if notDone != s.Remaining {
		return fmt.Errorf("remaining %d does not match %d unfinished accounts", s.Remaining, notDone)
	}
	return nil
}

// NormalizeAccounts trims credentials and drops entries without an email.
func NormalizeAccounts(raw []Account) []Account {
	trimmed := lo.Map(raw, func(a Account, _ int) Account {
		return Account{Email: strings.TrimSpace(a.Email), Password: a.Password}
	})
	return lo.Filter(trimmed, func(a Account, _ int) bool {
		return a.Email != ""
	})
}
