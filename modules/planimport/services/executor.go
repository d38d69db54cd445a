package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/events"
	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/pkg/eventbus"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/serrors"
)

var (
	ErrNotPartial           = serrors.NewError("IMPORT_NOT_PARTIAL", "batch is not awaiting a retry decision", "")
	ErrRetryNarrowedPartial = serrors.NewError("IMPORT_RETRY_PARTIAL", "narrowed retry was partially accepted", "")
	ErrInvalidBatch         = serrors.NewError("IMPORT_INVALID_BATCH", "batch cannot be submitted", "")
)

type BatchState string

const (
	StateDraft                 BatchState = "draft"
	StateSubmitted             BatchState = "submitted"
	StateAccepted              BatchState = "accepted"
	StatePartiallyAccepted     BatchState = "partially_accepted"
	StateAwaitingRetryDecision BatchState = "awaiting_retry_decision"
	StateRetrySubmitted        BatchState = "retry_submitted"
	StateRejected              BatchState = "rejected"
	// StateAbandoned is reached when the caller declines the narrowed retry.
	StateAbandoned BatchState = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s BatchState) Terminal() bool {
	switch s {
	case StateAccepted, StateRejected, StateAbandoned:
		return true
	}
	return false
}

// Batch is one import submission and its lifecycle.
type Batch struct {
	ID       uuid.UUID
	Kind     field.ImportKind
	Items    []item.Item
	Targets  []record.TargetID
	Defaults item.Defaults

	state   BatchState
	outcome outcome.Outcome
	// history records the states passed through, in order.
	history []BatchState
}

func NewBatch(kind field.ImportKind, items []item.Item, targets []record.TargetID, defaults item.Defaults) (*Batch, error) {
	if len(items) == 0 {
		return nil, serrors.Wrap(ErrInvalidBatch, "no items")
	}
	if len(targets) == 0 {
		return nil, serrors.Wrap(ErrInvalidBatch, "no targets")
	}
	ts := slices.Clone(targets)
	slices.Sort(ts)
	ts = slices.Compact(ts)
	return &Batch{
		ID:       uuid.New(),
		Kind:     kind,
		Items:    items,
		Targets:  ts,
		Defaults: defaults,
		state:    StateDraft,
		history:  []BatchState{StateDraft},
	}, nil
}

func (b *Batch) State() BatchState {
	return b.state
}

// Outcome is the last decoded backend answer, nil while draft.
func (b *Batch) Outcome() outcome.Outcome {
	return b.outcome
}

func (b *Batch) History() []BatchState {
	return slices.Clone(b.history)
}

func (b *Batch) transition(to BatchState) {
	b.state = to
	b.history = append(b.history, to)
}

// RetryTargets returns the accepted subset a narrowed retry would submit to.
func (b *Batch) RetryTargets() []record.TargetID {
	if p, ok := b.outcome.(outcome.PartiallyAccepted); ok {
		return slices.Clone(p.Accepted)
	}
	return nil
}

// ResumeBatch rebuilds a batch that an earlier run left awaiting a retry decision.
func ResumeBatch(
	id uuid.UUID,
	kind field.ImportKind,
	items []item.Item,
	targets []record.TargetID,
	defaults item.Defaults,
	partial outcome.PartiallyAccepted,
) (*Batch, error) {
	b, err := NewBatch(kind, items, targets, defaults)
	if err != nil {
		return nil, err
	}
	if id != uuid.Nil {
		b.ID = id
	}
	if len(partial.Accepted) == 0 || len(notIn(partial.Accepted, b.Targets)) > 0 {
		return nil, serrors.Wrap(ErrInvalidBatch, "accepted targets %v are not a subset of %v", partial.Accepted, b.Targets)
	}
	b.outcome = partial
	b.transition(StateSubmitted)
	b.transition(StatePartiallyAccepted)
	b.transition(StateAwaitingRetryDecision)
	return b, nil
}

type ExecutorOptions struct {
	Logger *logrus.Entry
	// Bus receives events.ImportCompleted after an accepted submission.
	Bus eventbus.EventBus
}

func (o *ExecutorOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

// Executor drives batches through submission. It never retries on its own: a partial
// outcome waits for the caller to choose RetryAccepted or Decline.
type Executor struct {
	backend ImportBackend
	opts    ExecutorOptions
}

func NewExecutor(backend ImportBackend, opts ExecutorOptions) *Executor {
	opts.setDefaults()
	return &Executor{backend: backend, opts: opts}
}

// Submit sends the batch once with its full target set.
func (e *Executor) Submit(ctx context.Context, b *Batch) (outcome.Outcome, error) {
	if b.state != StateDraft {
		return nil, serrors.Wrap(ErrInvalidBatch, "batch %s is %s, not draft", b.ID, b.state)
	}
	b.transition(StateSubmitted)
	out, err := e.send(ctx, b, b.Targets)
	if err != nil {
		b.outcome = out
		b.transition(StateRejected)
		return out, err
	}
	b.outcome = out

	switch o := out.(type) {
	case outcome.Accepted:
		b.transition(StateAccepted)
		e.completed(b, b.Targets, o)
		return out, nil
	case outcome.PartiallyAccepted:
		if extra := notIn(o.Accepted, b.Targets); len(extra) > 0 {
			rej := outcome.Rejected{Status: 207, Code: "malformed_response", Reason: fmt.Sprintf("accepted unknown targets %v", extra)}
			b.outcome = rej
			b.transition(StateRejected)
			return rej, rej.Err()
		}
		b.transition(StatePartiallyAccepted)
		b.transition(StateAwaitingRetryDecision)
		e.log(b).WithFields(logrus.Fields{
			"accepted": o.Accepted,
			"blocked":  o.BlockedTargets(),
		}).Info("batch partially accepted")
		return out, nil
	case outcome.Rejected:
		b.transition(StateRejected)
		return out, o.Err()
	default:
		b.transition(StateRejected)
		return out, fmt.Errorf("unexpected outcome %T", out)
	}
}

// RetryAccepted resubmits the batch to the targets that accepted it. The narrowed submission
// ends Accepted or Rejected; a second partial answer counts as Rejected.
func (e *Executor) RetryAccepted(ctx context.Context, b *Batch) (outcome.Outcome, error) {
	if b.state != StateAwaitingRetryDecision {
		return nil, serrors.Wrap(ErrNotPartial, "batch %s is %s", b.ID, b.state)
	}
	targets := b.RetryTargets()
	b.transition(StateRetrySubmitted)
	out, err := e.send(ctx, b, targets)
	if err != nil {
		b.outcome = out
		b.transition(StateRejected)
		return out, err
	}

	switch o := out.(type) {
	case outcome.Accepted:
		b.outcome = out
		b.transition(StateAccepted)
		e.completed(b, targets, o)
		return out, nil
	case outcome.PartiallyAccepted:
		rej := outcome.Rejected{
			Status:  207,
			Code:    "retry_partially_accepted",
			Reason:  "narrowed retry was partially accepted",
			Missing: flattenBlocked(o),
		}
		b.outcome = rej
		b.transition(StateRejected)
		return rej, errors.Join(serrors.Wrap(ErrRetryNarrowedPartial, "blocked targets %v", o.BlockedTargets()), rej.Err())
	case outcome.Rejected:
		b.outcome = out
		b.transition(StateRejected)
		return out, o.Err()
	default:
		b.transition(StateRejected)
		return out, fmt.Errorf("unexpected outcome %T", out)
	}
}

// RetryAcceptedPerItem performs the narrowed retry as individual record creations, one
// item per accepted target, through the submitter. Item failures do not stop the batch.
// The batch ends Accepted when at least one record was created, Rejected otherwise.
func (e *Executor) RetryAcceptedPerItem(ctx context.Context, b *Batch, store RecordStore, sub *Submitter) (Report, error) {
	if b.state != StateAwaitingRetryDecision {
		return Report{}, serrors.Wrap(ErrNotPartial, "batch %s is %s", b.ID, b.state)
	}
	targets := b.RetryTargets()
	b.transition(StateRetrySubmitted)

	tasks := make([]Task, 0, len(targets)*len(b.Items))
	for _, target := range targets {
		for _, it := range b.Items {
			fields := it.Fields.Clone()
			b.Defaults.ApplyTo(&fields)
			fields.URL = NormalizeURL(fields.URL)
			tasks = append(tasks, Task{
				Label: fmt.Sprintf("target %d line %d", target, it.Line),
				Run: func(ctx context.Context) error {
					_, err := store.CreateRecord(ctx, target, fields)
					return err
				},
			})
		}
	}
	rep := sub.Run(ctx, tasks)
	e.log(b).WithFields(logrus.Fields{
		"succeeded": rep.Succeeded,
		"failed":    rep.Failed,
	}).Info("per-item retry finished")

	if rep.Succeeded == 0 {
		rej := outcome.Rejected{Code: "per_item_retry_failed", Reason: "no item was created", Missing: rep.Errors}
		b.outcome = rej
		b.transition(StateRejected)
		recordOutcome(rej.Name())
		return rep, rej.Err()
	}
	acc := outcome.Accepted{Created: rep.Succeeded}
	b.outcome = acc
	b.transition(StateAccepted)
	recordOutcome(acc.Name())
	e.completed(b, targets, acc)
	return rep, nil
}

// Decline abandons a batch awaiting a retry decision. Nothing is sent.
func (e *Executor) Decline(b *Batch) error {
	if b.state != StateAwaitingRetryDecision {
		return serrors.Wrap(ErrNotPartial, "batch %s is %s", b.ID, b.state)
	}
	b.transition(StateAbandoned)
	e.log(b).Info("narrowed retry declined")
	return nil
}

func (e *Executor) send(ctx context.Context, b *Batch, targets []record.TargetID) (outcome.Outcome, error) {
	items := make([]item.Item, len(b.Items))
	for i, it := range b.Items {
		it.Fields = it.Fields.Clone()
		it.Fields.URL = NormalizeURL(it.Fields.URL)
		items[i] = it
	}
	req := ImportRequest{
		TargetIDs: targets,
		Items:     items,
		Defaults:  b.Defaults,
	}

	log := e.log(b).WithField("targets", targets)
	log.WithField("items", len(items)).Info("submitting batch")
	started := time.Now()
	out, err := e.backend.Import(ctx, req)
	observeRequest("import", started)
	if err != nil {
		recordOutcome("transport_error")
		log.WithError(err).Error("batch submission failed")
		rej := outcome.Rejected{Code: "transport", Reason: err.Error()}
		if !errors.Is(err, ErrTransport) {
			err = serrors.Wrap(ErrTransport, "%v", err)
		}
		return rej, err
	}
	recordOutcome(out.Name())
	log.WithField("outcome", out.Name()).Info("batch submitted")
	return out, nil
}

func (e *Executor) completed(b *Batch, targets []record.TargetID, o outcome.Accepted) {
	if e.opts.Bus == nil {
		return
	}
	e.opts.Bus.Publish(events.ImportCompleted{
		BatchID: b.ID,
		Kind:    b.Kind,
		Targets: slices.Clone(targets),
		Created: o.Created,
		Updated: o.Updated,
	})
}

func (e *Executor) log(b *Batch) *logrus.Entry {
	return e.opts.Logger.WithFields(logrus.Fields{"batch_id": b.ID, "kind": b.Kind})
}

func notIn(ids, set []record.TargetID) []record.TargetID {
	var out []record.TargetID
	for _, id := range ids {
		if !slices.Contains(set, id) {
			out = append(out, id)
		}
	}
	return out
}

func flattenBlocked(p outcome.PartiallyAccepted) []string {
	var out []string
	for _, t := range p.BlockedTargets() {
		for _, reason := range p.Rejected[t] {
			out = append(out, fmt.Sprintf("%d: %s", t, reason))
		}
	}
	return out
}
