package ethercat

// PositionSensorData is one encoder sample: raw counts plus metadata.
type PositionSensorData struct {
	Position    int32 // encoder counts
	Velocity    int32 // counts/s
	TimestampNS uint64
	Valid       bool
	SlaveID     uint16
}

// VelocitySensorData is one tachometer sample.
type VelocitySensorData struct {
	Velocity     float64
	Acceleration float64
	TimestampNS  uint64
	Valid        bool
	SlaveID      uint16
}

// TorqueSensorData is one six-axis force/torque sample.
type TorqueSensorData struct {
	ForceX, ForceY, ForceZ    float64
	TorqueX, TorqueY, TorqueZ float64
	TimestampNS               uint64
	Valid                     bool
	SlaveID                   uint16
}

// DigitalInputData is one DI channel sample extracted from the bitmap.
type DigitalInputData struct {
	Channel     uint8
	Value       bool
	TimestampNS uint64
	Valid       bool
	SlaveID     uint16
}

// AnalogInputData is one AI channel sample widened to float64.
type AnalogInputData struct {
	Channel     uint8
	Value       float64
	TimestampNS uint64
	Valid       bool
	SlaveID     uint16
}
