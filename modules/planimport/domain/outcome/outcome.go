// Package outcome holds the closed set of import outcomes and decodes backend responses into it.
package outcome

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/pkg/serrors"
)

var ErrRejected = serrors.NewError("IMPORT_REJECTED", "import rejected", "")

// Outcome is one of Accepted, PartiallyAccepted or Rejected.
type Outcome interface {
	Name() string
	isOutcome()
}

type Accepted struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// PartiallyAccepted lists the targets that accepted the batch and, per blocked target,
// the unmet prerequisites the backend reported.
type PartiallyAccepted struct {
	Accepted []record.TargetID            `json:"allowed_project_ids"`
	Rejected map[record.TargetID][]string `json:"missing_by_project"`
}

type Rejected struct {
	Status  int      `json:"status"`
	Code    string   `json:"code,omitempty"`
	Reason  string   `json:"reason"`
	Missing []string `json:"missing,omitempty"`
}

func (Accepted) Name() string          { return "accepted" }
func (PartiallyAccepted) Name() string { return "partially_accepted" }
func (Rejected) Name() string          { return "rejected" }

func (Accepted) isOutcome()          {}
func (PartiallyAccepted) isOutcome() {}
func (Rejected) isOutcome()          {}

// BlockedTargets returns rejected targets in ascending order.
func (p PartiallyAccepted) BlockedTargets() []record.TargetID {
	out := make([]record.TargetID, 0, len(p.Rejected))
	for t := range p.Rejected {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Err returns the rejection as an error matching ErrRejected.
func (r Rejected) Err() error {
	msg := r.Reason
	if r.Code != "" {
		msg = r.Code + ": " + msg
	}
	if len(r.Missing) > 0 {
		msg += " (missing: " + strings.Join(r.Missing, ", ") + ")"
	}
	return serrors.Wrap(ErrRejected, "status %d: %s", r.Status, msg)
}

type acceptedBody struct {
	Created *int `json:"created" validate:"required,gte=0"`
	Updated *int `json:"updated" validate:"required,gte=0"`
}

type partialBody struct {
	MissingByProject  map[record.TargetID][]string `json:"missing_by_project" validate:"required,min=1,dive,keys,gt=0,endkeys,min=1"`
	AllowedProjectIDs []record.TargetID            `json:"allowed_project_ids" validate:"dive,gt=0"`
}

type detailBody struct {
	Code    string   `json:"code"`
	Missing []string `json:"missing"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode turns a raw /import response into an Outcome. Bodies that do not match the
// contract for their status decode to Rejected.
func Decode(status int, body []byte) Outcome {
	switch {
	case status == http.StatusOK:
		var b acceptedBody
		if err := strictDecode(body, &b); err != nil {
			return malformed(status, err)
		}
		return Accepted{Created: *b.Created, Updated: *b.Updated}

	case status == http.StatusMultiStatus:
		var b partialBody
		if err := strictDecode(body, &b); err != nil {
			return malformed(status, err)
		}
		if len(b.AllowedProjectIDs) == 0 {
			return Rejected{
				Status:  status,
				Code:    "no_target_accepted",
				Reason:  "no target accepted the batch",
				Missing: flatten(b.MissingByProject),
			}
		}
		for _, t := range b.AllowedProjectIDs {
			if _, blocked := b.MissingByProject[t]; blocked {
				return malformed(status, fmt.Errorf("target %d is both allowed and blocked", t))
			}
		}
		allowed := slices.Clone(b.AllowedProjectIDs)
		slices.Sort(allowed)
		return PartiallyAccepted{
			Accepted: slices.Compact(allowed),
			Rejected: b.MissingByProject,
		}

	default:
		return decodeFailure(status, body)
	}
}

func decodeFailure(status int, body []byte) Rejected {
	r := Rejected{Status: status, Reason: http.StatusText(status)}
	if r.Reason == "" {
		r.Reason = fmt.Sprintf("unexpected status %d", status)
	}
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
			r.Reason = text
		}
		return r
	}
	var text string
	if err := json.Unmarshal(env.Detail, &text); err == nil {
		r.Reason = text
		return r
	}
	var d detailBody
	if err := json.Unmarshal(env.Detail, &d); err == nil && d.Code != "" {
		r.Code = d.Code
		r.Missing = d.Missing
		return r
	}
	return r
}

func strictDecode(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			return serrors.ProcessValidatorErrors(ve)
		}
		return err
	}
	return nil
}

func malformed(status int, err error) Rejected {
	return Rejected{
		Status: status,
		Code:   "malformed_response",
		Reason: err.Error(),
	}
}

func flatten(m map[record.TargetID][]string) []string {
	keys := make([]record.TargetID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []string
	for _, k := range keys {
		for _, reason := range m[k] {
			out = append(out, fmt.Sprintf("%d: %s", k, reason))
		}
	}
	return out
}
