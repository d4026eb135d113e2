package events

import (
	"time"

	"github.com/5rbit/mxrc/pkg/datastore"
)

// Type identifies the kind of event. The names are the canonical wire
// names observed by Non-RT collaborators.
type Type string

const (
	EventRTStateChanged    Type = "RT_STATE_CHANGED"
	EventRTSafeModeEntered Type = "RT_SAFE_MODE_ENTERED"
	EventRTSafeModeExited  Type = "RT_SAFE_MODE_EXITED"
	EventEtherCATError     Type = "ETHERCAT_ERROR"
	EventDataStoreChanged  Type = "DATASTORE_CHANGED"
)

// ErrorKind classifies EtherCAT failures carried by ETHERCAT_ERROR events.
type ErrorKind string

const (
	ErrSendFailure        ErrorKind = "SEND_FAILURE"
	ErrReceiveFailure     ErrorKind = "RECEIVE_FAILURE"
	ErrLinkDown           ErrorKind = "LINK_DOWN"
	ErrSlaveNotResponding ErrorKind = "SLAVE_NOT_RESPONDING"
	ErrPDOMappingError    ErrorKind = "PDO_MAPPING_ERROR"
	ErrDCSyncError        ErrorKind = "DC_SYNC_ERROR"
	ErrDomainError        ErrorKind = "DOMAIN_ERROR"
	ErrInitialization     ErrorKind = "INITIALIZATION_ERROR"
)

// Event is a flat value carrying every payload variant; Type selects which
// fields are meaningful. Broker.Publish fills in an empty ID (a new UUID)
// and an empty timestamp on the calling goroutine.
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time

	// RT_STATE_CHANGED
	From    string
	To      string
	Trigger string

	// RT_SAFE_MODE_ENTERED / EXITED
	TimeoutMS  uint64
	DowntimeMS uint64
	Reason     string

	// ETHERCAT_ERROR
	Kind        ErrorKind
	Description string
	SlaveID     uint16

	// DATASTORE_CHANGED
	Key datastore.Key
	Seq uint64
}

// Sink is the fire-and-forget publication port the CORE components hold.
// Delivery is best-effort: implementations must never block the caller and
// drop on overflow.
type Sink interface {
	Publish(ev Event)
}

// NopSink discards everything. Components accept a nil-safe default so the
// RT path never branches on a missing collaborator.
type NopSink struct{}

func (NopSink) Publish(Event) {}
