// Package contract defines the bus-facing records: the incoming assignment,
// the acknowledgement and the exec-result mapping published for every
// completed step. The schema is version-tagged; this package implements
// version "1".
package contract

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is the only assignment/result schema this worker speaks.
const SchemaVersion = "1"

// Rejection reasons carried on a rejected acknowledgement.
const (
	ReasonInvalidVersion     = "invalid_version"
	ReasonUnsupportedJobType = "unsupported_job_type"
	ReasonQueueFull          = "queue_full"
)

// ReasonMissingField builds the missing_field:<name> rejection reason.
func ReasonMissingField(name string) string {
	return "missing_field:" + name
}

// AssignmentExecutor names the provider expected to run the job.
type AssignmentExecutor struct {
	ProviderID string `json:"provider_id"`
}

// AssignmentJob describes the step to run and its named inputs.
type AssignmentJob struct {
	Type   string            `json:"type"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// Assignment is one decoded step-execution assignment delivered by the bus.
type Assignment struct {
	Version      string `json:"version"       validate:"required,eq=1"`
	AssignmentID string `json:"assignment_id" validate:"required"`
	RequestID    string `json:"request_id"    validate:"required"`
	TenantID     string `json:"tenant_id"     validate:"required"`

	TraceID string `json:"trace_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	FlowID  string `json:"flow_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`

	Executor   AssignmentExecutor `json:"executor"`
	Job        AssignmentJob      `json:"job"`
	Resources  map[string]string  `json:"resources,omitempty"`
	TimeoutMS  int64              `json:"timeout_ms,omitempty"`
	RetryCount *int32             `json:"retry_count,omitempty"`
	Guardrails map[string]string  `json:"guardrails,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldReasons maps struct field names of validation failures onto the wire
// rejection reasons.
var fieldReasons = map[string]string{
	"AssignmentID": ReasonMissingField("assignment_id"),
	"RequestID":    ReasonMissingField("request_id"),
	"TenantID":     ReasonMissingField("tenant_id"),
}

// Validate checks the structural contract of the assignment. On failure it
// returns the rejection reason for the first offending field in declaration
// order ("invalid_version" or "missing_field:<name>").
func (a *Assignment) Validate() (string, bool) {
	err := validate.Struct(a)
	if err == nil {
		return "", true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ReasonInvalidVersion, false
	}

	field := verrs[0]
	if field.StructField() == "Version" {
		return ReasonInvalidVersion, false
	}

	if reason, ok := fieldReasons[field.StructField()]; ok {
		return reason, false
	}

	return ReasonMissingField(field.StructField()), false
}
