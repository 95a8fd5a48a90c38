// Package eventbus is the worker's port onto the message bus: assignments
// and cancels flow in, acknowledgements and exec results flow out. The bus
// transport itself is an external collaborator; implementations adapt a
// concrete channel (kafka, in-process) onto this interface.
package eventbus

import (
	"context"

	"github.com/rustkas/beamline-worker/pkg/contract"
)

// Subjects carrying worker traffic.
const (
	AssignmentSubject = "beamline.exec.assignment"
	CancelSubject     = "beamline.exec.cancel"
	AckSubject        = "beamline.exec.ack"
	ResultSubject     = "beamline.exec.result"
)

// AssignmentHandler processes one decoded assignment.
type AssignmentHandler func(ctx context.Context, assignment contract.Assignment) error

// CancelHandler processes one cancel request for a step ID.
type CancelHandler func(ctx context.Context, stepID string) error

// Cancel is the payload of the cancel subject.
type Cancel struct {
	StepID string `json:"step_id"`
}

type Publisher interface {
	PublishAck(ctx context.Context, ack contract.Ack) error
	PublishResult(ctx context.Context, result map[string]string) error
}

type Subscriber interface {
	OnAssignment(handler AssignmentHandler)
	OnCancel(handler CancelHandler)
	Subscribe(ctx context.Context) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
	GenerateID() string
}
