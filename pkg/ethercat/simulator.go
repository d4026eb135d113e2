package ethercat

import (
	"errors"
	"sync/atomic"
)

// ErrMasterInactive is returned by Send/Receive when the simulated bus is
// not operational.
var ErrMasterInactive = errors.New("ethercat: master not active")

// SimulatedMaster is an in-memory Master for tests and hardware-less bench
// runs. The domain buffer is plain memory: whatever the write stage encodes
// stays in place for the read stage, so a loopback mapping behaves like a
// bus echoing commands back as sensor values.
type SimulatedMaster struct {
	state      MasterState
	active     bool
	domain     []byte
	errorCount atomic.Uint64

	// Fault injection knobs.
	FailSend    bool
	FailReceive bool
}

// NewSimulatedMaster creates a simulator with a domain of the given size.
func NewSimulatedMaster(domainSize int) *SimulatedMaster {
	return &SimulatedMaster{domain: make([]byte, domainSize)}
}

func (m *SimulatedMaster) Initialize() error {
	m.state = MasterInitialized
	return nil
}

func (m *SimulatedMaster) Activate() error {
	if m.state == MasterUninitialized {
		if err := m.Initialize(); err != nil {
			return err
		}
	}
	m.state = MasterActivated
	m.active = true
	return nil
}

func (m *SimulatedMaster) Deactivate() error {
	m.active = false
	m.state = MasterConfigured
	return nil
}

func (m *SimulatedMaster) Send() error {
	if !m.active || m.FailSend {
		m.errorCount.Add(1)
		return ErrMasterInactive
	}
	return nil
}

func (m *SimulatedMaster) Receive() error {
	if !m.active || m.FailReceive {
		m.errorCount.Add(1)
		return ErrMasterInactive
	}
	return nil
}

func (m *SimulatedMaster) IsActive() bool {
	return m.active
}

func (m *SimulatedMaster) ErrorCount() uint64 {
	return m.errorCount.Load()
}

func (m *SimulatedMaster) DomainData() []byte {
	return m.domain
}

func (m *SimulatedMaster) DCEnabled() bool {
	return false
}

func (m *SimulatedMaster) DCSystemTimeOffset() int32 {
	return 0
}

// State returns the simulator's lifecycle state.
func (m *SimulatedMaster) State() MasterState {
	return m.state
}
