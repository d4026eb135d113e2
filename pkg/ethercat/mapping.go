package ethercat

// PDODirection tells which half of the process image a mapping lives in.
type PDODirection uint8

const (
	DirInput  PDODirection = iota // slave → master (sensor data)
	DirOutput                     // master → slave (commands)
)

// PDODataType is the wire type of a mapped field.
type PDODataType uint8

const (
	PDOInt8 PDODataType = iota
	PDOUint8
	PDOInt16
	PDOUint16
	PDOInt32
	PDOUint32
	PDOFloat32
	PDOFloat64
)

// ByteLen returns the field width in bytes.
func (t PDODataType) ByteLen() int {
	switch t {
	case PDOInt8, PDOUint8:
		return 1
	case PDOInt16, PDOUint16:
		return 2
	case PDOInt32, PDOUint32, PDOFloat32:
		return 4
	case PDOFloat64:
		return 8
	default:
		return 0
	}
}

// Well-known PDO indices. The class semantics are fixed; the concrete
// offsets come from the slave configuration.
const (
	IdxSensorPosition uint16 = 0x1A00 // 01 position INT32, 02 velocity INT32
	IdxSensorVelocity uint16 = 0x1A01 // 01 velocity DOUBLE, 02 acceleration DOUBLE
	IdxSensorTorque   uint16 = 0x1A02 // 01..06 Fx,Fy,Fz,Tx,Ty,Tz DOUBLE
	IdxDigitalInput   uint16 = 0x1A03 // 01 bitmap UINT8/UINT16
	IdxAnalogInput    uint16 = 0x1A04 // 01..04 per-channel typed value
	IdxDigitalOutput  uint16 = 0x1600 // 01 bitmap UINT8/UINT16
	IdxAnalogOutput   uint16 = 0x1601 // 01..04 per-channel typed value
	IdxBLDCCommand    uint16 = 0x1602 // 01 CW UINT16, 02 velocity INT32, 03 torque INT16/DOUBLE
	IdxServoCommand   uint16 = 0x1603 // 01 CW UINT16, 02 pos, 03 max-vel, 04 vel, 05 torque DOUBLE
)

// PDOMapping places one field of a slave's process data inside the domain.
type PDOMapping struct {
	Direction   PDODirection
	Index       uint16
	Subindex    uint8
	BitLength   uint8
	DataType    PDODataType
	Offset      uint32
	Description string
}

// DeviceType classifies a slave.
type DeviceType uint8

const (
	DeviceUnknown DeviceType = iota
	DeviceSensor
	DeviceMotor
	DeviceIOModule
)

// Slave describes one device on the bus, as loaded from configuration.
type Slave struct {
	Alias       uint16
	Position    uint16
	VendorID    uint32
	ProductCode uint32
	DeviceName  string
	DeviceType  DeviceType
	Mappings    []PDOMapping
}

// findMapping scans a slave's mappings for an exact (direction, index,
// subindex) match.
func findMapping(mappings []PDOMapping, dir PDODirection, index uint16, subindex uint8) (PDOMapping, bool) {
	for _, m := range mappings {
		if m.Direction == dir && m.Index == index && m.Subindex == subindex {
			return m, true
		}
	}
	return PDOMapping{}, false
}
