package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Payload is the business content of a block. Each category has its own
// variant; Generic covers categories without one.
type Payload interface {
	Category() Category
	Validate() error
	Fields() (map[string]any, error)
}

// Project registers a construction project.
type Project struct {
	Title      string  `json:"title"`
	Location   string  `json:"location,omitempty"`
	Budget     float64 `json:"budget,omitempty"`
	Contractor string  `json:"contractor,omitempty"`
	From       string  `json:"from,omitempty"`

	Extra map[string]any `json:"-"`
}

func (Project) Category() Category { return CategoryProjects }

func (p Project) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return invalid("projects: title is required")
	}
	if p.Budget < 0 {
		return invalid("projects: budget must not be negative")
	}
	return checkExtra(p.Extra)
}

func (p Project) Fields() (map[string]any, error) { return structFields(p, p.Extra) }

// MilestoneDefinition declares a milestone a project is expected to reach.
type MilestoneDefinition struct {
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	From        string `json:"from,omitempty"`

	Extra map[string]any `json:"-"`
}

func (MilestoneDefinition) Category() Category { return CategoryDefinedMilestones }

func (m MilestoneDefinition) Validate() error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return invalid("defined_milestones: projectId is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		return invalid("defined_milestones: title is required")
	}
	if m.Status != "" && m.Status != StatusDefined {
		return invalid("defined_milestones: status must be %q, got %q", StatusDefined, m.Status)
	}
	return checkExtra(m.Extra)
}

func (m MilestoneDefinition) Fields() (map[string]any, error) { return structFields(m, m.Extra) }

// ApprovedMilestone is a staged milestone submission after admin approval.
type ApprovedMilestone struct {
	ProjectID          string `json:"projectId"`
	DefinedMilestoneID string `json:"definedMilestoneId,omitempty"`
	Description        string `json:"description,omitempty"`
	ProofHash          string `json:"proofHash,omitempty"`
	From               string `json:"from,omitempty"`
	Status             string `json:"status"`
	SubmittedAt        string `json:"submittedAt,omitempty"`
	ApprovedBy         string `json:"approvedBy"`
	ApprovedAt         string `json:"approvedAt"`

	Extra map[string]any `json:"-"`
}

func (ApprovedMilestone) Category() Category { return CategoryMilestones }

func (m ApprovedMilestone) Validate() error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return invalid("milestones: projectId is required")
	}
	if strings.TrimSpace(m.ApprovedBy) == "" {
		return invalid("milestones: approvedBy is required")
	}
	if strings.TrimSpace(m.ApprovedAt) == "" {
		return invalid("milestones: approvedAt is required")
	}
	if m.Status != StatusApproved {
		return invalid("milestones: status must be %q, got %q", StatusApproved, m.Status)
	}
	return checkExtra(m.Extra)
}

func (m ApprovedMilestone) Fields() (map[string]any, error) { return structFields(m, m.Extra) }

// MaterialDelivery logs materials delivered to a site.
type MaterialDelivery struct {
	ProjectID string `json:"projectId,omitempty"`
	Material  string `json:"material"`
	Quantity  int64  `json:"quantity"`
	ProofHash string `json:"proofHash,omitempty"`
	From      string `json:"from,omitempty"`

	Extra map[string]any `json:"-"`
}

func (MaterialDelivery) Category() Category { return CategoryMaterials }

func (m MaterialDelivery) Validate() error {
	if strings.TrimSpace(m.Material) == "" {
		return invalid("materials: material is required")
	}
	if m.Quantity <= 0 {
		return invalid("materials: quantity must be positive, got %d", m.Quantity)
	}
	return checkExtra(m.Extra)
}

func (m MaterialDelivery) Fields() (map[string]any, error) { return structFields(m, m.Extra) }

// Attendance marks a laborer present or absent on a date.
type Attendance struct {
	ProjectID string `json:"projectId"`
	LaborName string `json:"laborName"`
	Date      string `json:"date"`
	Present   bool   `json:"present"`
	From      string `json:"from,omitempty"`

	Extra map[string]any `json:"-"`
}

func (Attendance) Category() Category { return CategoryAttendance }

func (a Attendance) Validate() error {
	if strings.TrimSpace(a.ProjectID) == "" {
		return invalid("attendance: projectId is required")
	}
	if strings.TrimSpace(a.LaborName) == "" {
		return invalid("attendance: laborName is required")
	}
	if strings.TrimSpace(a.Date) == "" {
		return invalid("attendance: date is required")
	}
	return checkExtra(a.Extra)
}

func (a Attendance) Fields() (map[string]any, error) { return structFields(a, a.Extra) }

// LaborRegistration adds a laborer to a project's registry.
type LaborRegistration struct {
	ProjectID    string `json:"projectId"`
	Name         string `json:"name"`
	Skill        string `json:"skill,omitempty"`
	RegisteredBy string `json:"registeredBy,omitempty"`

	Extra map[string]any `json:"-"`
}

func (LaborRegistration) Category() Category { return CategoryLaborRegistry }

func (l LaborRegistration) Validate() error {
	if strings.TrimSpace(l.ProjectID) == "" {
		return invalid("labor_registry: projectId is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return invalid("labor_registry: name is required")
	}
	return checkExtra(l.Extra)
}

func (l LaborRegistration) Fields() (map[string]any, error) { return structFields(l, l.Extra) }

// Generic is an untyped payload for categories without a variant.
type Generic struct {
	Cat  Category
	Data map[string]any
}

func (g Generic) Category() Category { return g.Cat }

func (g Generic) Validate() error {
	if !g.Cat.Valid() {
		return invalid("category %q is not a valid name", g.Cat)
	}
	if len(g.Data) == 0 {
		return invalid("%s: payload is empty", g.Cat)
	}
	return checkExtra(g.Data)
}

func (g Generic) Fields() (map[string]any, error) { return structFields(struct{}{}, g.Data) }

// Milestone submission states.
const (
	StatusPending  = "pending_approval"
	StatusApproved = "approved"
	StatusDefined  = "defined"
)

// ApplyDefaults fills the fields a category sets on creation when fields
// leaves them out. Defined milestones start as StatusDefined, created now.
func ApplyDefaults(category Category, fields map[string]any, now time.Time) {
	if category != CategoryDefinedMilestones {
		return
	}
	if _, ok := fields["status"]; !ok {
		fields["status"] = StatusDefined
	}
	if _, ok := fields["createdAt"]; !ok {
		fields["createdAt"] = FormatTimestamp(now)
	}
}

// ParsePayload builds the payload variant for category from decoded JSON
// fields. Fields the variant does not declare are kept verbatim so they are
// still committed to the chain.
func ParsePayload(category Category, fields map[string]any) (Payload, error) {
	switch category {
	case CategoryProjects:
		var p Project
		if err := decodeInto(fields, &p, &p.Extra); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryDefinedMilestones:
		var m MilestoneDefinition
		if err := decodeInto(fields, &m, &m.Extra); err != nil {
			return nil, err
		}
		return m, nil
	case CategoryMilestones:
		var m ApprovedMilestone
		if err := decodeInto(fields, &m, &m.Extra); err != nil {
			return nil, err
		}
		return m, nil
	case CategoryMaterials:
		var m MaterialDelivery
		if err := decodeInto(fields, &m, &m.Extra); err != nil {
			return nil, err
		}
		return m, nil
	case CategoryAttendance:
		var a Attendance
		if err := decodeInto(fields, &a, &a.Extra); err != nil {
			return nil, err
		}
		return a, nil
	case CategoryLaborRegistry:
		var l LaborRegistration
		if err := decodeInto(fields, &l, &l.Extra); err != nil {
			return nil, err
		}
		return l, nil
	default:
		data := make(map[string]any, len(fields))
		for k, v := range fields {
			data[k] = v
		}
		return Generic{Cat: category, Data: data}, nil
	}
}

// decodeInto fills target from fields and records every input key the
// typed form does not reproduce in extra.
func decodeInto(fields map[string]any, target any, extra *map[string]any) error {
	for k := range fields {
		if IsReservedField(k) {
			return fmt.Errorf("%w: %w: %q", ErrValidation, ErrReservedField, k)
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return invalid("encode payload: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return invalid("decode payload: %v", err)
	}

	typed, err := structFields(target, nil)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if _, ok := typed[k]; ok {
			continue
		}
		if *extra == nil {
			*extra = make(map[string]any)
		}
		(*extra)[k] = v
	}
	return nil
}

// structFields lowers v through its JSON tags and merges extra underneath,
// so declared fields win over extra keys of the same name.
func structFields(v any, extra map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode payload: %w", err)
	}
	typed := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&typed); err != nil {
		return nil, fmt.Errorf("ledger: decode payload: %w", err)
	}

	out := make(map[string]any, len(typed)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range typed {
		out[k] = v
	}
	return out, nil
}

func checkExtra(extra map[string]any) error {
	var reserved []string
	for k := range extra {
		if IsReservedField(k) {
			reserved = append(reserved, k)
		}
	}
	if len(reserved) == 0 {
		return nil
	}
	sort.Strings(reserved)
	return fmt.Errorf("%w: %w: %s", ErrValidation, ErrReservedField, strings.Join(reserved, ", "))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
