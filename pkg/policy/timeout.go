package policy

import "github.com/rustkas/beamline-worker/pkg/flags"

// FS operation kinds understood by FSTimeoutMS.
const (
	FSOpRead   = "read"
	FSOpWrite  = "write"
	FSOpDelete = "delete"
)

// FSTimeoutMS returns the per-operation timeout for a filesystem operation.
// Zero means no enforcement (legacy behavior with the complete-timeout gate
// off).
func FSTimeoutMS(operation string) int64 {
	if !flags.CompleteTimeoutEnabled() {
		return 0
	}

	switch operation {
	case FSOpRead, "fs.blob_get":
		return 5000
	case FSOpWrite, "fs.blob_put":
		return 10000
	case FSOpDelete:
		return 3000
	default:
		return 5000
	}
}

// HTTPConnectTimeoutMS returns the connection-establishment timeout for
// outbound HTTP. Zero means the single total timeout applies (legacy).
func HTTPConnectTimeoutMS() int64 {
	if !flags.CompleteTimeoutEnabled() {
		return 0
	}

	return 5000
}

// HTTPTotalTimeoutMS returns the overall deadline for one HTTP attempt. With
// the gate on it is connect timeout plus request timeout; off, the request
// timeout alone.
func HTTPTotalTimeoutMS(requestTimeoutMS int64) int64 {
	if !flags.CompleteTimeoutEnabled() {
		return requestTimeoutMS
	}

	return HTTPConnectTimeoutMS() + requestTimeoutMS
}
