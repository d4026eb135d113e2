package ethercat

// MasterState tracks the lifecycle of the fieldbus master.
type MasterState uint8

const (
	MasterUninitialized MasterState = iota
	MasterInitialized
	MasterConfigured
	MasterActivated
	MasterError
)

// String returns the state name.
func (s MasterState) String() string {
	switch s {
	case MasterUninitialized:
		return "UNINITIALIZED"
	case MasterInitialized:
		return "INITIALIZED"
	case MasterConfigured:
		return "CONFIGURED"
	case MasterActivated:
		return "ACTIVATED"
	case MasterError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Master is the capability set the cycle driver consumes. The production
// implementation wraps a native EtherCAT stack; SimulatedMaster backs tests
// and bench setups. Within one cycle Send must precede Receive; the cycle
// driver guarantees that ordering.
type Master interface {
	// Initialize acquires the master and the process-data domain.
	Initialize() error
	// Activate brings the bus to operational state. DomainData is only
	// meaningful afterwards.
	Activate() error
	// Deactivate releases the bus.
	Deactivate() error
	// Send queues the output half of the process image onto the wire.
	Send() error
	// Receive ingests the input half of the process image.
	Receive() error
	// IsActive reports whether the bus is operational.
	IsActive() bool
	// ErrorCount returns the master's cumulative bus error count.
	ErrorCount() uint64
	// DomainData returns the live process-data domain buffer. The slice
	// aliases master-owned memory and is only valid while active.
	DomainData() []byte
	// DCEnabled reports whether distributed clocks are configured.
	DCEnabled() bool
	// DCSystemTimeOffset returns the DC system time offset in nanoseconds.
	DCSystemTimeOffset() int32
}

// SlaveDirectory resolves the PDO mappings configured for a slave.
type SlaveDirectory interface {
	PDOMappings(slaveID uint16) []PDOMapping
}
