package ethercat

import "math"

// ControlMode selects how a motor drive interprets its targets.
type ControlMode int32

const (
	ModeDisabled ControlMode = iota
	ModePosition
	ModeVelocity
	ModeTorque
)

// String returns the mode name.
func (m ControlMode) String() string {
	switch m {
	case ModeDisabled:
		return "DISABLED"
	case ModePosition:
		return "POSITION"
	case ModeVelocity:
		return "VELOCITY"
	case ModeTorque:
		return "TORQUE"
	default:
		return "UNKNOWN"
	}
}

// Safety envelopes. BLDC drives take signed targets; servo drives take
// non-negative velocity/torque and a position within either the rotation
// range or the linear range.
const (
	BLDCMaxVelocityRPM = 10000.0
	BLDCMaxTorqueNm    = 100.0

	ServoRotationRange = 2 * math.Pi
	ServoLinearRange   = 10.0
)

// BLDCCommand is one cycle's command for a BLDC drive.
type BLDCCommand struct {
	SlaveID        uint16
	TargetVelocity float64 // RPM
	TargetTorque   float64 // Nm
	Mode           ControlMode
	Enable         bool
	TimestampNS    uint64
}

// Valid checks the command against the BLDC safety envelope. A disabled
// command is always valid: it encodes as a zeroed control word.
func (c BLDCCommand) Valid() bool {
	if !c.Enable || c.Mode == ModeDisabled {
		return true
	}
	switch c.Mode {
	case ModeVelocity:
		return c.TargetVelocity >= -BLDCMaxVelocityRPM && c.TargetVelocity <= BLDCMaxVelocityRPM
	case ModeTorque:
		return c.TargetTorque >= -BLDCMaxTorqueNm && c.TargetTorque <= BLDCMaxTorqueNm
	default:
		// BLDC drives have no position loop.
		return false
	}
}

// ServoCommand is one cycle's command for a servo drive.
type ServoCommand struct {
	SlaveID        uint16
	TargetPosition float64 // rad or m
	TargetVelocity float64 // rad/s or m/s
	TargetTorque   float64 // Nm
	Mode           ControlMode
	MaxVelocity    float64
	MaxTorque      float64
	Enable         bool
	TimestampNS    uint64
}

// Valid checks the command against the servo safety envelope.
func (c ServoCommand) Valid() bool {
	if !c.Enable || c.Mode == ModeDisabled {
		return true
	}
	switch c.Mode {
	case ModePosition:
		inRotation := c.TargetPosition >= -ServoRotationRange && c.TargetPosition <= ServoRotationRange
		inLinear := c.TargetPosition >= -ServoLinearRange && c.TargetPosition <= ServoLinearRange
		velocityOK := c.TargetVelocity >= 0 && c.TargetVelocity <= c.MaxVelocity
		return (inRotation || inLinear) && velocityOK
	case ModeVelocity:
		return c.TargetVelocity >= 0 && c.TargetVelocity <= c.MaxVelocity
	case ModeTorque:
		return c.TargetTorque >= 0 && c.TargetTorque <= c.MaxTorque
	default:
		return false
	}
}

// controlWord encodes enable and mode into the drive control word: bit 0
// enable, bits 1..3 mode code.
func controlWord(enable bool, mode ControlMode) uint16 {
	if !enable || mode == ModeDisabled {
		return 0
	}
	var cw uint16 = 0x0001
	switch mode {
	case ModePosition:
		cw |= 0x01 << 1
	case ModeVelocity:
		cw |= 0x02 << 1
	case ModeTorque:
		cw |= 0x03 << 1
	}
	return cw
}
