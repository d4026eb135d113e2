package ethercat

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/log"
)

// ErrInvalidCommand is returned when a motor command fails its safety
// envelope. The PDO buffer is left untouched so the previous cycle's bytes
// keep driving the bus.
var ErrInvalidCommand = errors.New("ethercat: motor command outside safety envelope")

// MotorCommander encodes validated motor commands into the output half of
// the process image under 0x1602 (BLDC) and 0x1603 (servo).
type MotorCommander struct {
	master Master
	slaves SlaveDirectory
	logger zerolog.Logger
}

// NewMotorCommander wires the commander to a master and a slave directory.
func NewMotorCommander(master Master, slaves SlaveDirectory) *MotorCommander {
	return &MotorCommander{
		master: master,
		slaves: slaves,
		logger: log.WithComponent("motor"),
	}
}

// WriteBLDC validates and encodes a BLDC command: control word at
// 0x1602:01, velocity target at :02 (INT32), torque target at :03
// (INT16 or DOUBLE).
func (c *MotorCommander) WriteBLDC(cmd BLDCCommand) error {
	domain := c.master.DomainData()
	if domain == nil {
		return ErrNoMapping
	}
	if !cmd.Valid() {
		c.logger.Error().
			Uint16("slave_id", cmd.SlaveID).
			Stringer("mode", cmd.Mode).
			Float64("velocity", cmd.TargetVelocity).
			Float64("torque", cmd.TargetTorque).
			Msg("Rejected BLDC command")
		return ErrInvalidCommand
	}

	mappings := c.slaves.PDOMappings(cmd.SlaveID)
	if len(mappings) == 0 {
		return ErrNoMapping
	}

	if err := c.writeControlWord(domain, mappings, controlWord(cmd.Enable, cmd.Mode)); err != nil {
		return err
	}

	if cmd.Enable && cmd.Mode == ModeVelocity {
		if m, ok := findMapping(mappings, DirOutput, IdxBLDCCommand, 0x02); ok {
			if m.DataType != PDOInt32 {
				return ErrUnsupportedType
			}
			WriteInt32(domain, m.Offset, int32(cmd.TargetVelocity))
		}
	}

	if cmd.Enable && cmd.Mode == ModeTorque {
		if m, ok := findMapping(mappings, DirOutput, IdxBLDCCommand, 0x03); ok {
			switch m.DataType {
			case PDOInt16:
				WriteInt16(domain, m.Offset, int16(cmd.TargetTorque))
			case PDOFloat64:
				WriteFloat64(domain, m.Offset, cmd.TargetTorque)
			default:
				return ErrUnsupportedType
			}
		}
	}
	return nil
}

// WriteServo validates and encodes a servo command: control word at
// 0x1603:01, position at :02 with the velocity limit at :03, velocity
// target at :04, torque target at :05 (all DOUBLE).
func (c *MotorCommander) WriteServo(cmd ServoCommand) error {
	domain := c.master.DomainData()
	if domain == nil {
		return ErrNoMapping
	}
	if !cmd.Valid() {
		c.logger.Error().
			Uint16("slave_id", cmd.SlaveID).
			Stringer("mode", cmd.Mode).
			Float64("position", cmd.TargetPosition).
			Float64("velocity", cmd.TargetVelocity).
			Float64("torque", cmd.TargetTorque).
			Msg("Rejected servo command")
		return ErrInvalidCommand
	}

	mappings := c.slaves.PDOMappings(cmd.SlaveID)
	if len(mappings) == 0 {
		return ErrNoMapping
	}

	if err := c.writeControlWord(domain, mappings, controlWord(cmd.Enable, cmd.Mode)); err != nil {
		return err
	}

	if cmd.Enable && cmd.Mode == ModePosition {
		if m, ok := findMapping(mappings, DirOutput, IdxServoCommand, 0x02); ok {
			if m.DataType != PDOFloat64 {
				return ErrUnsupportedType
			}
			WriteFloat64(domain, m.Offset, cmd.TargetPosition)
		}
		// The profile velocity limit rides along with every position target.
		if m, ok := findMapping(mappings, DirOutput, IdxServoCommand, 0x03); ok && m.DataType == PDOFloat64 {
			WriteFloat64(domain, m.Offset, cmd.MaxVelocity)
		}
	}

	if cmd.Enable && cmd.Mode == ModeVelocity {
		if m, ok := findMapping(mappings, DirOutput, IdxServoCommand, 0x04); ok {
			if m.DataType != PDOFloat64 {
				return ErrUnsupportedType
			}
			WriteFloat64(domain, m.Offset, cmd.TargetVelocity)
		}
	}

	if cmd.Enable && cmd.Mode == ModeTorque {
		if m, ok := findMapping(mappings, DirOutput, IdxServoCommand, 0x05); ok {
			if m.DataType != PDOFloat64 {
				return ErrUnsupportedType
			}
			WriteFloat64(domain, m.Offset, cmd.TargetTorque)
		}
	}
	return nil
}

// WriteSafe zeroes the control word for a slave, the hold state SAFE_MODE
// keeps every drive in.
func (c *MotorCommander) WriteSafe(slaveID uint16) error {
	domain := c.master.DomainData()
	if domain == nil {
		return ErrNoMapping
	}
	mappings := c.slaves.PDOMappings(slaveID)
	if len(mappings) == 0 {
		return ErrNoMapping
	}
	return c.writeControlWord(domain, mappings, 0)
}

// writeControlWord resolves the control-word mapping, trying the BLDC
// index first, then the servo index.
func (c *MotorCommander) writeControlWord(domain []byte, mappings []PDOMapping, cw uint16) error {
	if m, ok := findMapping(mappings, DirOutput, IdxBLDCCommand, 0x01); ok && m.DataType == PDOUint16 {
		WriteUint16(domain, m.Offset, cw)
		return nil
	}
	if m, ok := findMapping(mappings, DirOutput, IdxServoCommand, 0x01); ok && m.DataType == PDOUint16 {
		WriteUint16(domain, m.Offset, cw)
		return nil
	}
	return ErrNoMapping
}
