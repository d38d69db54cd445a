package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/events"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/pkg/eventbus"
	"github.com/seoplan/planner/pkg/logging"
)

// MembershipPlan is the set of backend calls that turns a group's membership into a wanted
// target set. Adding a target creates a new record from the sample; removing one deletes
// that target's record outright.
type MembershipPlan struct {
	Create []record.TargetID `json:"create"`
	Delete []record.ID       `json:"delete"`
	// DeleteTargets[i] owns Delete[i].
	DeleteTargets []record.TargetID `json:"delete_targets"`
}

func (p MembershipPlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Delete) == 0
}

// PlanMembership diffs the group's members against want.
func PlanMembership(g *record.Group, want []record.TargetID) MembershipPlan {
	var plan MembershipPlan
	for _, t := range want {
		if !g.Has(t) && !slices.Contains(plan.Create, t) {
			plan.Create = append(plan.Create, t)
		}
	}
	for _, t := range g.Targets() {
		if !slices.Contains(want, t) {
			plan.Delete = append(plan.Delete, g.Members[t])
			plan.DeleteTargets = append(plan.DeleteTargets, t)
		}
	}
	return plan
}

type BulkOptions struct {
	Logger *logrus.Entry
	// Bus receives events.RecordsChanged after any call reached the backend.
	Bus       eventbus.EventBus
	Submitter *Submitter
}

func (o *BulkOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Submitter == nil {
		o.Submitter = NewSubmitter(SubmitterOptions{Logger: o.Logger})
	}
}

// BulkService applies user actions on grouped records by expanding them into per-record
// backend calls.
type BulkService struct {
	store  RecordStore
	lister RecordLister
	opts   BulkOptions
}

// NewBulkService reads listings through lister, which may be a cache in front of store.
// A nil lister reads from store.
func NewBulkService(store RecordStore, lister RecordLister, opts BulkOptions) *BulkService {
	opts.setDefaults()
	if lister == nil {
		lister = store
	}
	return &BulkService{store: store, lister: lister, opts: opts}
}

// Groups lists the targets' records and reconciles them.
func (s *BulkService) Groups(ctx context.Context, targets []record.TargetID) ([]*record.Group, error) {
	records, err := s.lister.ListRecords(ctx, targets)
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	return Reconcile(records), nil
}

// FindGroup returns the group holding record id among the targets' records.
func (s *BulkService) FindGroup(ctx context.Context, targets []record.TargetID, id record.ID) (*record.Group, error) {
	groups, err := s.Groups(ctx, targets)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if slices.Contains(g.IDs(), id) {
			return g, nil
		}
	}
	return nil, errors.Errorf("record %d not found in targets %v", id, targets)
}

// SetMembership makes want the group's exact target set.
func (s *BulkService) SetMembership(ctx context.Context, g *record.Group, want []record.TargetID) (MembershipPlan, Report, error) {
	plan := PlanMembership(g, want)
	if plan.Empty() {
		return plan, Report{Errors: []string{}}, nil
	}

	tasks := make([]Task, 0, len(plan.Create))
	for _, t := range plan.Create {
		fields := g.Sample.Clone()
		tasks = append(tasks, Task{
			Label: fmt.Sprintf("create in target %d", t),
			Run: func(ctx context.Context) error {
				_, err := s.store.CreateRecord(ctx, t, fields)
				return err
			},
		})
	}
	rep := s.opts.Submitter.Run(ctx, tasks)

	var deleteErr error
	if len(plan.Delete) > 0 {
		if err := s.store.DeleteRecords(ctx, plan.Delete); err != nil {
			deleteErr = errors.Wrapf(err, "delete records %v", plan.Delete)
			rep.addError(s.opts.Submitter.opts.MaxErrors, deleteErr.Error())
		} else {
			rep.Succeeded += len(plan.Delete)
		}
	}

	s.changed(append(slices.Clone(plan.Create), plan.DeleteTargets...))
	s.opts.Logger.WithFields(logrus.Fields{
		"key":     g.Key,
		"created": len(plan.Create),
		"deleted": len(plan.Delete),
		"failed":  rep.Failed,
	}).Info("membership updated")
	return plan, rep, deleteErr
}

// AddTargets adds targets to the group's membership.
func (s *BulkService) AddTargets(ctx context.Context, g *record.Group, targets []record.TargetID) (MembershipPlan, Report, error) {
	want := g.Targets()
	for _, t := range targets {
		if !slices.Contains(want, t) {
			want = append(want, t)
		}
	}
	return s.SetMembership(ctx, g, want)
}

// RemoveTargets deletes the group's records in targets.
func (s *BulkService) RemoveTargets(ctx context.Context, g *record.Group, targets []record.TargetID) (MembershipPlan, Report, error) {
	want := slices.DeleteFunc(g.Targets(), func(t record.TargetID) bool {
		return slices.Contains(targets, t)
	})
	return s.SetMembership(ctx, g, want)
}

// Edit applies change to the group's sample and sends the difference as a merge patch to
// each member record in targets (all members when targets is empty). Values the change
// leaves alone are not sent, so members keep their own values for them.
func (s *BulkService) Edit(ctx context.Context, g *record.Group, targets []record.TargetID, change func(*item.Fields)) (Report, error) {
	original, err := json.Marshal(g.Sample)
	if err != nil {
		return Report{}, errors.Wrap(err, "marshal sample")
	}
	edited := g.Sample.Clone()
	change(&edited)
	modified, err := json.Marshal(edited)
	if err != nil {
		return Report{}, errors.Wrap(err, "marshal edited sample")
	}
	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return Report{}, errors.Wrap(err, "create merge patch")
	}
	if string(patch) == "{}" {
		return Report{Errors: []string{}}, nil
	}

	if len(targets) == 0 {
		targets = g.Targets()
	}
	ids := Expand(g, targets)
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, Task{
			Label: fmt.Sprintf("record %d", id),
			Run: func(ctx context.Context) error {
				return s.store.PatchRecord(ctx, id, patch)
			},
		})
	}
	rep := s.opts.Submitter.Run(ctx, tasks)
	s.changed(targets)
	s.opts.Logger.WithFields(logrus.Fields{
		"key":     g.Key,
		"patch":   string(patch),
		"records": len(ids),
		"failed":  rep.Failed,
	}).Info("group edited")
	return rep, nil
}

// Delete removes the group's records in targets (all members when targets is empty) with
// one batch call.
func (s *BulkService) Delete(ctx context.Context, g *record.Group, targets []record.TargetID) ([]record.ID, error) {
	if len(targets) == 0 {
		targets = g.Targets()
	}
	ids := Expand(g, targets)
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.store.DeleteRecords(ctx, ids); err != nil {
		return nil, errors.Wrapf(err, "delete records %v", ids)
	}
	s.changed(targets)
	return ids, nil
}

func (s *BulkService) changed(targets []record.TargetID) {
	if s.opts.Bus == nil || len(targets) == 0 {
		return
	}
	s.opts.Bus.Publish(events.RecordsChanged{Targets: slices.Clone(targets)})
}
