package ethercat

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/rtos"
)

var (
	ErrNoMapping       = errors.New("ethercat: pdo mapping not found")
	ErrUnsupportedType = errors.New("ethercat: unsupported pdo data type")
	ErrOutOfRange      = errors.New("ethercat: value outside output range")
)

// SensorIO decodes sensor fields out of the input half of the process
// image and encodes output fields into the output half, per the slave
// configuration's PDO mappings.
type SensorIO struct {
	master Master
	slaves SlaveDirectory
	logger zerolog.Logger
}

// NewSensorIO wires the stage to a master and a slave directory.
func NewSensorIO(master Master, slaves SlaveDirectory) *SensorIO {
	return &SensorIO{
		master: master,
		slaves: slaves,
		logger: log.WithComponent("sensorio"),
	}
}

// ReadPosition decodes an encoder's position and velocity (0x1A00:01/02,
// raw INT32 counts).
func (s *SensorIO) ReadPosition(slaveID uint16) (PositionSensorData, error) {
	var data PositionSensorData
	domain := s.master.DomainData()
	if domain == nil {
		return data, ErrNoMapping
	}
	mappings := s.slaves.PDOMappings(slaveID)

	pos, ok := findMapping(mappings, DirInput, IdxSensorPosition, 0x01)
	if !ok {
		return data, ErrNoMapping
	}
	data.Position = ReadInt32(domain, pos.Offset)

	if vel, ok := findMapping(mappings, DirInput, IdxSensorPosition, 0x02); ok {
		data.Velocity = ReadInt32(domain, vel.Offset)
	}

	data.TimestampNS = rtos.MonotonicNowNS()
	data.Valid = s.master.IsActive()
	data.SlaveID = slaveID
	return data, nil
}

// ReadVelocity decodes a velocity sensor (0x1A01:01/02, DOUBLE).
func (s *SensorIO) ReadVelocity(slaveID uint16) (VelocitySensorData, error) {
	var data VelocitySensorData
	domain := s.master.DomainData()
	if domain == nil {
		return data, ErrNoMapping
	}
	mappings := s.slaves.PDOMappings(slaveID)

	vel, ok := findMapping(mappings, DirInput, IdxSensorVelocity, 0x01)
	if !ok {
		return data, ErrNoMapping
	}
	data.Velocity = ReadFloat64(domain, vel.Offset)

	if acc, ok := findMapping(mappings, DirInput, IdxSensorVelocity, 0x02); ok {
		data.Acceleration = ReadFloat64(domain, acc.Offset)
	}

	data.TimestampNS = rtos.MonotonicNowNS()
	data.Valid = s.master.IsActive()
	data.SlaveID = slaveID
	return data, nil
}

// ReadTorque decodes a six-axis force/torque block (0x1A02:01..06, DOUBLE).
func (s *SensorIO) ReadTorque(slaveID uint16) (TorqueSensorData, error) {
	var data TorqueSensorData
	domain := s.master.DomainData()
	if domain == nil {
		return data, ErrNoMapping
	}

	found := false
	for _, m := range s.slaves.PDOMappings(slaveID) {
		if m.Direction != DirInput || m.Index != IdxSensorTorque {
			continue
		}
		found = true
		v := ReadFloat64(domain, m.Offset)
		switch m.Subindex {
		case 0x01:
			data.ForceX = v
		case 0x02:
			data.ForceY = v
		case 0x03:
			data.ForceZ = v
		case 0x04:
			data.TorqueX = v
		case 0x05:
			data.TorqueY = v
		case 0x06:
			data.TorqueZ = v
		}
	}
	if !found {
		return data, ErrNoMapping
	}

	data.TimestampNS = rtos.MonotonicNowNS()
	data.Valid = s.master.IsActive()
	data.SlaveID = slaveID
	return data, nil
}

// ReadDigitalInput extracts one channel bit from the DI bitmap
// (0x1A03:01, UINT8 or UINT16).
func (s *SensorIO) ReadDigitalInput(slaveID uint16, channel uint8) (DigitalInputData, error) {
	var data DigitalInputData
	domain := s.master.DomainData()
	if domain == nil {
		return data, ErrNoMapping
	}

	m, ok := findMapping(s.slaves.PDOMappings(slaveID), DirInput, IdxDigitalInput, 0x01)
	if !ok {
		return data, ErrNoMapping
	}

	var bitmap uint16
	switch m.DataType {
	case PDOUint8:
		bitmap = uint16(ReadUint8(domain, m.Offset))
	case PDOUint16:
		bitmap = ReadUint16(domain, m.Offset)
	default:
		return data, ErrUnsupportedType
	}

	data.Channel = channel
	data.Value = bitmap&(1<<channel) != 0
	data.TimestampNS = rtos.MonotonicNowNS()
	data.Valid = s.master.IsActive()
	data.SlaveID = slaveID
	return data, nil
}

// ReadAnalogInput decodes one AI channel (0x1A04:01+channel) and widens it
// to float64.
func (s *SensorIO) ReadAnalogInput(slaveID uint16, channel uint8) (AnalogInputData, error) {
	var data AnalogInputData
	domain := s.master.DomainData()
	if domain == nil {
		return data, ErrNoMapping
	}

	m, ok := findMapping(s.slaves.PDOMappings(slaveID), DirInput, IdxAnalogInput, 0x01+channel)
	if !ok {
		return data, ErrNoMapping
	}

	switch m.DataType {
	case PDOInt16, PDOInt32, PDOFloat32, PDOFloat64:
		v, _ := ReadMappedFloat64(domain, m)
		data.Value = v
	default:
		return data, ErrUnsupportedType
	}

	data.Channel = channel
	data.TimestampNS = rtos.MonotonicNowNS()
	data.Valid = s.master.IsActive()
	data.SlaveID = slaveID
	return data, nil
}

// WriteDigitalOutput sets or clears one channel bit in the DO bitmap
// (0x1600:01) with a read-modify-write, leaving the other channels intact.
func (s *SensorIO) WriteDigitalOutput(slaveID uint16, channel uint8, value bool) error {
	domain := s.master.DomainData()
	if domain == nil {
		return ErrNoMapping
	}

	m, ok := findMapping(s.slaves.PDOMappings(slaveID), DirOutput, IdxDigitalOutput, 0x01)
	if !ok {
		return ErrNoMapping
	}

	var bitmap uint16
	switch m.DataType {
	case PDOUint8:
		bitmap = uint16(ReadUint8(domain, m.Offset))
	case PDOUint16:
		bitmap = ReadUint16(domain, m.Offset)
	default:
		return ErrUnsupportedType
	}

	if value {
		bitmap |= 1 << channel
	} else {
		bitmap &^= 1 << channel
	}

	switch m.DataType {
	case PDOUint8:
		WriteUint8(domain, m.Offset, uint8(bitmap))
	case PDOUint16:
		WriteUint16(domain, m.Offset, bitmap)
	}
	return nil
}

// WriteAnalogOutput encodes one AO channel (0x1601:01+channel) after
// checking the value against [min, max].
func (s *SensorIO) WriteAnalogOutput(slaveID uint16, channel uint8, value, min, max float64) error {
	domain := s.master.DomainData()
	if domain == nil {
		return ErrNoMapping
	}

	m, ok := findMapping(s.slaves.PDOMappings(slaveID), DirOutput, IdxAnalogOutput, 0x01+channel)
	if !ok {
		return ErrNoMapping
	}

	if value < min || value > max {
		s.logger.Warn().
			Uint16("slave_id", slaveID).
			Uint8("channel", channel).
			Float64("value", value).
			Float64("min", min).
			Float64("max", max).
			Msg("Analog output outside range, dropped")
		return ErrOutOfRange
	}

	if !WriteMappedFloat64(domain, m, value) {
		return ErrUnsupportedType
	}
	return nil
}
