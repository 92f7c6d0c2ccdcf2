package protocol

import "fmt"

// Status identifies the outcome of a request or transport operation.
// Values are part of the wire contract and must not be renumbered.
// Zero means "unset" and is never valid in a transmitted Response.
type Status int

const (
	StatusUnset Status = 0

	StatusSuccess           Status = 1
	StatusDeferred          Status = 2
	StatusAlreadyRunning    Status = 10
	StatusAlreadyRegistered Status = 11
	StatusError             Status = 100
	StatusInvalidAction     Status = 101
	StatusInvalidTarget     Status = 102
	StatusSubsystemUnset    Status = 103
	StatusInvalidHeader     Status = 110
	StatusSocketError       Status = 120
	StatusSocketClosed      Status = 121
	StatusSocketTimeout     Status = 122
)

// Category groups statuses for coarse dispatch. The set is closed; a status
// declares its memberships in statusTable below.
type Category uint8

const (
	CatSuccess Category = iota + 1
	CatInfo
	CatError
	CatSocket
	CatProtocol
	CatRequest
)

var categoryNames = map[Category]string{
	CatSuccess:  "success",
	CatInfo:     "info",
	CatError:    "error",
	CatSocket:   "socket",
	CatProtocol: "protocol",
	CatRequest:  "request",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

var statusTable = map[Status]struct {
	name string
	cats []Category
}{
	StatusSuccess:           {"success", []Category{CatSuccess}},
	StatusDeferred:          {"deferred", []Category{CatInfo}},
	StatusAlreadyRunning:    {"already_running", []Category{CatInfo}},
	StatusAlreadyRegistered: {"already_registered", []Category{CatInfo}},
	StatusError:             {"error", []Category{CatError}},
	StatusInvalidAction:     {"invalid_action", []Category{CatError, CatRequest}},
	StatusInvalidTarget:     {"invalid_target", []Category{CatError, CatRequest}},
	StatusSubsystemUnset:    {"subsystem_unset", []Category{CatError, CatRequest}},
	StatusInvalidHeader:     {"invalid_header", []Category{CatError, CatProtocol}},
	StatusSocketError:       {"socket_error", []Category{CatError, CatSocket}},
	StatusSocketClosed:      {"socket_closed", []Category{CatError, CatSocket}},
	StatusSocketTimeout:     {"socket_timeout", []Category{CatError, CatSocket}},
}

func (s Status) String() string {
	if info, ok := statusTable[s]; ok {
		return info.name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is a known, transmittable status.
func (s Status) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// In reports whether s belongs to cat.
func (s Status) In(cat Category) bool {
	info, ok := statusTable[s]
	if !ok {
		return false
	}
	for _, c := range info.cats {
		if c == cat {
			return true
		}
	}
	return false
}

// IsError reports whether s is any failure status. Informational statuses
// such as Deferred and AlreadyRunning are not errors.
func (s Status) IsError() bool {
	return s.In(CatError)
}
