package contract

// Acknowledgement statuses.
const (
	AckAccepted = "accepted"
	AckRejected = "rejected"
)

// Ack is the acknowledgement published once per assignment, before any
// result for the same assignment.
type Ack struct {
	AssignmentID string `json:"assignment_id"`
	RequestID    string `json:"request_id"`
	TenantID     string `json:"tenant_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// AcceptedAck builds the acceptance acknowledgement for an assignment.
func AcceptedAck(a *Assignment) Ack {
	return Ack{
		AssignmentID: a.AssignmentID,
		RequestID:    a.RequestID,
		TenantID:     a.TenantID,
		Status:       AckAccepted,
	}
}

// RejectedAck builds the rejection acknowledgement with a machine-readable
// reason.
func RejectedAck(a *Assignment, reason string) Ack {
	return Ack{
		AssignmentID: a.AssignmentID,
		RequestID:    a.RequestID,
		TenantID:     a.TenantID,
		Status:       AckRejected,
		Reason:       reason,
	}
}
