package ethercat

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/5rbit/mxrc/pkg/log"
)

// MasterConfig carries the bus-wide scheduling knobs.
type MasterConfig struct {
	Index       uint32 `yaml:"index"`
	CycleTimeNS uint32 `yaml:"cycle_time_ns"`
	Priority    int    `yaml:"priority"`
	CPUAffinity int    `yaml:"cpu_affinity"`
}

// DCConfig carries the distributed-clock configuration.
type DCConfig struct {
	Enable         bool   `yaml:"enable"`
	ReferenceSlave uint16 `yaml:"reference_slave"`
	Sync0CycleTime uint32 `yaml:"sync0_cycle_time"`
	Sync0ShiftTime uint32 `yaml:"sync0_shift_time"`
	Sync1CycleTime uint32 `yaml:"sync1_cycle_time"`
}

// Config is the immutable bus configuration loaded at INIT. It implements
// SlaveDirectory for the per-cycle stages.
type Config struct {
	Master MasterConfig
	Slaves []Slave
	DC     DCConfig

	byPosition map[uint16][]PDOMapping
}

// PDOMappings resolves the mappings configured for a slave position.
func (c *Config) PDOMappings(slaveID uint16) []PDOMapping {
	return c.byPosition[slaveID]
}

// raw YAML shapes; hex fields arrive as strings.
type rawConfig struct {
	Master MasterConfig `yaml:"master"`
	Slaves []rawSlave   `yaml:"slaves"`
	DC     DCConfig     `yaml:"dc_config"`
}

type rawSlave struct {
	Alias       uint16       `yaml:"alias"`
	Position    uint16       `yaml:"position"`
	VendorID    string       `yaml:"vendor_id"`
	ProductCode string       `yaml:"product_code"`
	DeviceName  string       `yaml:"device_name"`
	DeviceType  string       `yaml:"device_type"`
	PDOMappings []rawMapping `yaml:"pdo_mappings"`
}

type rawMapping struct {
	Direction   string `yaml:"direction"`
	Index       string `yaml:"index"`
	Subindex    string `yaml:"subindex"`
	DataType    string `yaml:"data_type"`
	Offset      uint32 `yaml:"offset"`
	Description string `yaml:"description"`
}

// LoadConfig reads and validates the slave configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML slave configuration.
func ParseConfig(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Master:     raw.Master,
		DC:         raw.DC,
		byPosition: make(map[uint16][]PDOMapping, len(raw.Slaves)),
	}

	for i, rs := range raw.Slaves {
		vendor, err := parseHex32(rs.VendorID)
		if err != nil {
			return nil, fmt.Errorf("slave %d vendor_id: %w", i, err)
		}
		product, err := parseHex32(rs.ProductCode)
		if err != nil {
			return nil, fmt.Errorf("slave %d product_code: %w", i, err)
		}
		devType, err := parseDeviceType(rs.DeviceType)
		if err != nil {
			return nil, fmt.Errorf("slave %d: %w", i, err)
		}

		slave := Slave{
			Alias:       rs.Alias,
			Position:    rs.Position,
			VendorID:    vendor,
			ProductCode: product,
			DeviceName:  rs.DeviceName,
			DeviceType:  devType,
		}

		for j, rm := range rs.PDOMappings {
			m, err := parseMapping(rm)
			if err != nil {
				return nil, fmt.Errorf("slave %d mapping %d: %w", i, j, err)
			}
			slave.Mappings = append(slave.Mappings, m)
		}

		cfg.Slaves = append(cfg.Slaves, slave)
		cfg.byPosition[slave.Position] = slave.Mappings
	}

	log.WithComponent("config").Info().
		Int("slaves", len(cfg.Slaves)).
		Uint32("cycle_time_ns", cfg.Master.CycleTimeNS).
		Msg("EtherCAT configuration loaded")
	return cfg, nil
}

func parseMapping(rm rawMapping) (PDOMapping, error) {
	var m PDOMapping

	switch strings.ToLower(rm.Direction) {
	case "input":
		m.Direction = DirInput
	case "output":
		m.Direction = DirOutput
	default:
		return m, fmt.Errorf("unknown direction %q", rm.Direction)
	}

	index, err := parseHex32(rm.Index)
	if err != nil {
		return m, fmt.Errorf("index: %w", err)
	}
	m.Index = uint16(index)

	subindex, err := parseHex32(rm.Subindex)
	if err != nil {
		return m, fmt.Errorf("subindex: %w", err)
	}
	m.Subindex = uint8(subindex)

	m.DataType, err = parsePDODataType(rm.DataType)
	if err != nil {
		return m, err
	}
	m.BitLength = uint8(m.DataType.ByteLen() * 8)
	m.Offset = rm.Offset
	m.Description = rm.Description
	return m, nil
}

// parseHex32 accepts decimal or 0x-prefixed values.
func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(s) {
	case "sensor":
		return DeviceSensor, nil
	case "motor":
		return DeviceMotor, nil
	case "io_module":
		return DeviceIOModule, nil
	case "", "unknown":
		return DeviceUnknown, nil
	default:
		return DeviceUnknown, fmt.Errorf("unknown device_type %q", s)
	}
}

func parsePDODataType(s string) (PDODataType, error) {
	switch strings.ToLower(s) {
	case "int8":
		return PDOInt8, nil
	case "uint8":
		return PDOUint8, nil
	case "int16":
		return PDOInt16, nil
	case "uint16":
		return PDOUint16, nil
	case "int32":
		return PDOInt32, nil
	case "uint32":
		return PDOUint32, nil
	case "float":
		return PDOFloat32, nil
	case "double":
		return PDOFloat64, nil
	default:
		return 0, fmt.Errorf("unknown data_type %q", s)
	}
}
