package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"auto-claimer/internal/model"

	tea "github.com/charmbracelet/bubbletea"
)

type sender interface {
	Send(msg tea.Msg)
}

// ProgramPublisher forwards snapshots to a running bubbletea program.
type ProgramPublisher struct {
	program sender
}

func NewProgramPublisher(p *tea.Program) *ProgramPublisher {
	return &ProgramPublisher{program: p}
}

func (p *ProgramPublisher) Publish(state model.JobState) error {
	p.program.Send(StateMsg{State: state})
	return nil
}

func (p *ProgramPublisher) NotifyBatchFinished() {
	p.program.Send(FinishedMsg{})
}

// LinePublisher prints one line per snapshot, as text or as JSON.
type LinePublisher struct {
	out  io.Writer
	json bool
}

func NewLinePublisher(out io.Writer, asJSON bool) *LinePublisher {
	return &LinePublisher{out: out, json: asJSON}
}

func (p *LinePublisher) Publish(state model.JobState) error {
	if p.json {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode job state: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}
	t := state.Tally()
	_, err := fmt.Fprintf(p.out, "progress %d/%d | running %d | claimed %d | failed %d | eta %s\n",
		state.Total-state.Remaining, state.Total, t.Running, t.Succeeded, t.Failed, FormatETA(state.ETASeconds))
	return err
}

func (p *LinePublisher) NotifyBatchFinished() {
	if p.json {
		return
	}
	_, _ = fmt.Fprintln(p.out, "batch finished")
}
