// Package events holds the notifications published after the backend state of a target changes.
package events

import (
	"github.com/google/uuid"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/record"
)

// ImportCompleted is published when a batch reaches Accepted.
type ImportCompleted struct {
	BatchID uuid.UUID
	Kind    field.ImportKind
	Targets []record.TargetID
	Created int
	Updated int
}

// RecordsChanged is published after bulk create, edit or delete calls touched targets.
type RecordsChanged struct {
	Targets []record.TargetID
}
