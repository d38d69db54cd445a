package services

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
)

// memStore is an in-memory RecordStore keeping records in insertion order.
type memStore struct {
	mu         sync.Mutex
	nextID     record.ID
	records    []record.Record
	failCreate map[record.TargetID]error
	failPatch  map[record.ID]error
	patches    map[record.ID][]string
	deletes    [][]record.ID
	lists      int
}

func newMemStore(seed ...record.Record) *memStore {
	s := &memStore{
		nextID:     100,
		records:    slices.Clone(seed),
		failCreate: map[record.TargetID]error{},
		failPatch:  map[record.ID]error{},
		patches:    map[record.ID][]string{},
	}
	return s
}

func (s *memStore) ListRecords(_ context.Context, targets []record.TargetID) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []record.Record
	for _, r := range s.records {
		if len(targets) == 0 || slices.Contains(targets, r.Project) {
			out = append(out, record.Record{ID: r.ID, Project: r.Project, Fields: r.Fields.Clone()})
		}
	}
	return out, nil
}

func (s *memStore) CreateRecord(_ context.Context, target record.TargetID, fields item.Fields) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCreate[target]; err != nil {
		return record.Record{}, err
	}
	s.nextID++
	r := record.Record{ID: s.nextID, Project: target, Fields: fields.Clone()}
	s.records = append(s.records, r)
	return r, nil
}

func (s *memStore) PatchRecord(_ context.Context, id record.ID, patch []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failPatch[id]; err != nil {
		return err
	}
	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		doc, err := json.Marshal(r.Fields)
		if err != nil {
			return err
		}
		merged, err := jsonpatch.MergePatch(doc, patch)
		if err != nil {
			return err
		}
		var f item.Fields
		if err := json.Unmarshal(merged, &f); err != nil {
			return err
		}
		s.records[i].Fields = f
		s.patches[id] = append(s.patches[id], string(patch))
		return nil
	}
	return outcome.Rejected{Status: 404, Reason: "record not found"}.Err()
}

func (s *memStore) DeleteRecords(_ context.Context, ids []record.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, slices.Clone(ids))
	s.records = slices.DeleteFunc(s.records, func(r record.Record) bool {
		return slices.Contains(ids, r.ID)
	})
	return nil
}
