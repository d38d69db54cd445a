package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

type savedItem struct {
	Line   int         `json:"line"`
	Fields item.Fields `json:"fields"`
}

// savedBatch is a partially accepted batch kept on disk until the retry decision.
type savedBatch struct {
	ID       uuid.UUID                 `json:"id"`
	Kind     field.ImportKind          `json:"kind"`
	Targets  []record.TargetID         `json:"targets"`
	Defaults item.Defaults             `json:"defaults"`
	Items    []savedItem               `json:"items"`
	Partial  outcome.PartiallyAccepted `json:"partial"`
}

func saveBatch(path string, b *services.Batch) error {
	partial, ok := b.Outcome().(outcome.PartiallyAccepted)
	if !ok {
		return withCode(exitUsage, fmt.Errorf("batch %s is %s, nothing to save", b.ID, b.State()))
	}
	sb := savedBatch{ID: b.ID, Kind: b.Kind, Targets: b.Targets, Defaults: b.Defaults, Partial: partial}
	for _, it := range b.Items {
		sb.Items = append(sb.Items, savedItem{Line: it.Line, Fields: it.Fields})
	}
	data, err := json.MarshalIndent(sb, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func loadBatch(path string) (*services.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read batch: %w", err))
	}
	var sb savedBatch
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("decode batch %s: %w", path, err))
	}
	items := make([]item.Item, len(sb.Items))
	for i, it := range sb.Items {
		items[i] = item.Item{Kind: sb.Kind, Line: it.Line, Fields: it.Fields}
	}
	return services.ResumeBatch(sb.ID, sb.Kind, items, sb.Targets, sb.Defaults, sb.Partial)
}
