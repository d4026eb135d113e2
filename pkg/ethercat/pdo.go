package ethercat

import (
	"encoding/binary"
	"math"
)

// PDO codec: fixed-width reads and writes at byte offsets inside the
// process-data domain. Little-endian, no alignment assumptions; offsets are
// not bounds-checked, so the domain must cover every configured mapping.

func ReadInt16(domain []byte, offset uint32) int16 {
	return int16(binary.LittleEndian.Uint16(domain[offset:]))
}

func ReadUint16(domain []byte, offset uint32) uint16 {
	return binary.LittleEndian.Uint16(domain[offset:])
}

func ReadInt32(domain []byte, offset uint32) int32 {
	return int32(binary.LittleEndian.Uint32(domain[offset:]))
}

func ReadUint8(domain []byte, offset uint32) uint8 {
	return domain[offset]
}

func ReadFloat32(domain []byte, offset uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(domain[offset:]))
}

func ReadFloat64(domain []byte, offset uint32) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(domain[offset:]))
}

func WriteInt16(domain []byte, offset uint32, v int16) {
	binary.LittleEndian.PutUint16(domain[offset:], uint16(v))
}

func WriteUint16(domain []byte, offset uint32, v uint16) {
	binary.LittleEndian.PutUint16(domain[offset:], v)
}

func WriteInt32(domain []byte, offset uint32, v int32) {
	binary.LittleEndian.PutUint32(domain[offset:], uint32(v))
}

func WriteUint8(domain []byte, offset uint32, v uint8) {
	domain[offset] = v
}

func WriteFloat32(domain []byte, offset uint32, v float32) {
	binary.LittleEndian.PutUint32(domain[offset:], math.Float32bits(v))
}

func WriteFloat64(domain []byte, offset uint32, v float64) {
	binary.LittleEndian.PutUint64(domain[offset:], math.Float64bits(v))
}

// ReadMappedFloat64 decodes the field behind a mapping and widens it to
// float64, dispatching on the mapping's data type.
func ReadMappedFloat64(domain []byte, m PDOMapping) (float64, bool) {
	switch m.DataType {
	case PDOInt8:
		return float64(int8(domain[m.Offset])), true
	case PDOUint8:
		return float64(domain[m.Offset]), true
	case PDOInt16:
		return float64(ReadInt16(domain, m.Offset)), true
	case PDOUint16:
		return float64(ReadUint16(domain, m.Offset)), true
	case PDOInt32:
		return float64(ReadInt32(domain, m.Offset)), true
	case PDOUint32:
		return float64(binary.LittleEndian.Uint32(domain[m.Offset:])), true
	case PDOFloat32:
		return float64(ReadFloat32(domain, m.Offset)), true
	case PDOFloat64:
		return ReadFloat64(domain, m.Offset), true
	default:
		return 0, false
	}
}

// WriteMappedFloat64 narrows a float64 onto the field behind a mapping,
// dispatching on the mapping's data type.
func WriteMappedFloat64(domain []byte, m PDOMapping, v float64) bool {
	switch m.DataType {
	case PDOInt16:
		WriteInt16(domain, m.Offset, int16(v))
	case PDOInt32:
		WriteInt32(domain, m.Offset, int32(v))
	case PDOFloat32:
		WriteFloat32(domain, m.Offset, float32(v))
	case PDOFloat64:
		WriteFloat64(domain, m.Offset, v)
	default:
		return false
	}
	return true
}
