package protocol

import (
	"strconv"
)

// Status is a Guacamole protocol status code, carried as the second
// element of an "error" instruction.
// https://guacamole.apache.org/doc/gug/protocol-reference.html#status-codes
type Status int64

const (
	// Success - the operation succeeded.
	Success Status = 0

	// Unsupported - the requested operation is unsupported.
	Unsupported Status = 256

	// 0x02xx - server errors.
	ServerError         Status = 512
	ServerBusy          Status = 513
	UpstreamTimeout     Status = 514
	UpstreamError       Status = 515
	ResourceNotFound    Status = 516
	ResourceConflict    Status = 517
	ResourceClosed      Status = 518
	UpstreamNotFound    Status = 519
	UpstreamUnavailable Status = 520
	SessionConflict     Status = 521
	SessionTimeout      Status = 522
	SessionClosed       Status = 523

	// 0x03xx - client errors.
	ClientBadRequest   Status = 768
	ClientUnauthorized Status = 769
	ClientForbidden    Status = 771
	ClientTimeout      Status = 776
	ClientOverrun      Status = 781
	ClientBadType      Status = 783
	ClientTooMany      Status = 797
)

var statusNames = map[Status]string{
	Success:             "SUCCESS",
	Unsupported:         "UNSUPPORTED",
	ServerError:         "SERVER_ERROR",
	ServerBusy:          "SERVER_BUSY",
	UpstreamTimeout:     "UPSTREAM_TIMEOUT",
	UpstreamError:       "UPSTREAM_ERROR",
	ResourceNotFound:    "RESOURCE_NOT_FOUND",
	ResourceConflict:    "RESOURCE_CONFLICT",
	ResourceClosed:      "RESOURCE_CLOSED",
	UpstreamNotFound:    "UPSTREAM_NOT_FOUND",
	UpstreamUnavailable: "UPSTREAM_UNAVAILABLE",
	SessionConflict:     "SESSION_CONFLICT",
	SessionTimeout:      "SESSION_TIMEOUT",
	SessionClosed:       "SESSION_CLOSED",
	ClientBadRequest:    "CLIENT_BAD_REQUEST",
	ClientUnauthorized:  "CLIENT_UNAUTHORIZED",
	ClientForbidden:     "CLIENT_FORBIDDEN",
	ClientTimeout:       "CLIENT_TIMEOUT",
	ClientOverrun:       "CLIENT_OVERRUN",
	ClientBadType:       "CLIENT_BAD_TYPE",
	ClientTooMany:       "CLIENT_TOO_MANY",
}

// String returns "<code>_<NAME>", e.g. "519_UPSTREAM_NOT_FOUND".
func (s Status) String() string {
	code := strconv.FormatInt(int64(s), 10)
	name, ok := statusNames[s]
	if !ok {
		return code + "_UNKNOWN"
	}
	return code + "_" + name
}

// ClientFault reports whether the status blames the client rather than
// guacd or the remote desktop host.
func (s Status) ClientFault() bool {
	return s >= ClientBadRequest
}
