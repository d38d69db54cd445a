package services

import (
	"context"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/pkg/serrors"
)

var ErrTransport = serrors.NewError("BACKEND_TRANSPORT", "backend unreachable or returned a server error", "")

// ImportRequest is the body of POST /import.
type ImportRequest struct {
	TargetIDs []record.TargetID `json:"target_ids"`
	Items     []item.Item       `json:"items"`
	item.Defaults
}

// ImportBackend submits a batch. A non-nil error is a transport failure (ErrTransport);
// every response the backend gives, including 4xx, is returned as an Outcome.
type ImportBackend interface {
	Import(ctx context.Context, req ImportRequest) (outcome.Outcome, error)
}

// RecordLister lists stored records of the given targets in backend order.
type RecordLister interface {
	ListRecords(ctx context.Context, targets []record.TargetID) ([]record.Record, error)
}

// RecordStore is the per-record part of the backend used by bulk operations and
// per-item submission. Rejections match outcome.ErrRejected, transport failures ErrTransport.
type RecordStore interface {
	RecordLister
	CreateRecord(ctx context.Context, target record.TargetID, fields item.Fields) (record.Record, error)
	PatchRecord(ctx context.Context, id record.ID, mergePatch []byte) error
	DeleteRecords(ctx context.Context, ids []record.ID) error
}
