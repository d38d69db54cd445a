package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

type preparedLine struct {
	Event   string                `json:"event"`
	File    string                `json:"file"`
	Format  string                `json:"format"`
	Mapping services.HeaderMapping `json:"mapping"`
	Stats   services.PrepareStats `json:"stats"`
	Skipped []services.SkippedRow `json:"skipped"`
}

type outcomeLine struct {
	Event   string              `json:"event"`
	BatchID uuid.UUID           `json:"batch_id"`
	State   services.BatchState `json:"state"`
	Outcome string              `json:"outcome"`
	Detail  outcome.Outcome     `json:"detail"`
	// Blocked lists targets held back by missing prerequisites.
	Blocked []record.TargetID `json:"blocked,omitempty"`
}

func newOutcomeLine(event string, b *services.Batch) outcomeLine {
	line := outcomeLine{Event: event, BatchID: b.ID, State: b.State(), Detail: b.Outcome()}
	if o := b.Outcome(); o != nil {
		line.Outcome = o.Name()
		if p, ok := o.(outcome.PartiallyAccepted); ok {
			line.Blocked = p.BlockedTargets()
		}
	}
	return line
}

type reportLine struct {
	Event  string          `json:"event"`
	Report services.Report `json:"report"`
	Plan   any             `json:"plan,omitempty"`
}
