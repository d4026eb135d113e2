package ethercat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
master:
  index: 0
  cycle_time_ns: 1000000
  priority: 88
  cpu_affinity: 2
slaves:
  - alias: 0
    position: 0
    vendor_id: "0x00000002"
    product_code: "0x0c1e3052"
    device_name: encoder0
    device_type: sensor
    pdo_mappings:
      - direction: input
        index: "0x1A00"
        subindex: "0x01"
        data_type: int32
        offset: 0
        description: position
      - direction: input
        index: "0x1A00"
        subindex: "0x02"
        data_type: int32
        offset: 4
        description: velocity
  - alias: 1
    position: 10
    vendor_id: "0x000001dd"
    product_code: "0x10305070"
    device_name: wheel_drive
    device_type: motor
    pdo_mappings:
      - direction: output
        index: "0x1602"
        subindex: "0x01"
        data_type: uint16
        offset: 8
        description: control word
      - direction: output
        index: "0x1602"
        subindex: "0x02"
        data_type: int32
        offset: 10
        description: target velocity
dc_config:
  enable: true
  reference_slave: 0
  sync0_cycle_time: 1000000
  sync0_shift_time: 0
  sync1_cycle_time: 0
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, uint32(1000000), cfg.Master.CycleTimeNS)
	assert.Equal(t, 88, cfg.Master.Priority)
	assert.Equal(t, 2, cfg.Master.CPUAffinity)

	require.Len(t, cfg.Slaves, 2)

	encoder := cfg.Slaves[0]
	assert.Equal(t, uint32(0x2), encoder.VendorID)
	assert.Equal(t, uint32(0x0c1e3052), encoder.ProductCode)
	assert.Equal(t, DeviceSensor, encoder.DeviceType)
	require.Len(t, encoder.Mappings, 2)
	assert.Equal(t, DirInput, encoder.Mappings[0].Direction)
	assert.Equal(t, IdxSensorPosition, encoder.Mappings[0].Index)
	assert.Equal(t, uint8(0x01), encoder.Mappings[0].Subindex)
	assert.Equal(t, PDOInt32, encoder.Mappings[0].DataType)
	assert.Equal(t, uint8(32), encoder.Mappings[0].BitLength)

	drive := cfg.Slaves[1]
	assert.Equal(t, DeviceMotor, drive.DeviceType)
	assert.Equal(t, IdxBLDCCommand, drive.Mappings[0].Index)

	assert.True(t, cfg.DC.Enable)
	assert.Equal(t, uint32(1000000), cfg.DC.Sync0CycleTime)
}

func TestPDOMappingsLookup(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.PDOMappings(0), 2)
	assert.Len(t, cfg.PDOMappings(10), 2)
	assert.Empty(t, cfg.PDOMappings(99))
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad direction", `
slaves:
  - alias: 0
    position: 0
    vendor_id: "0x1"
    product_code: "0x1"
    device_name: x
    device_type: sensor
    pdo_mappings:
      - direction: sideways
        index: "0x1A00"
        subindex: "0x01"
        data_type: int32
        offset: 0
`},
		{"bad data type", `
slaves:
  - alias: 0
    position: 0
    vendor_id: "0x1"
    product_code: "0x1"
    device_name: x
    device_type: sensor
    pdo_mappings:
      - direction: input
        index: "0x1A00"
        subindex: "0x01"
        data_type: int128
        offset: 0
`},
		{"bad vendor id", `
slaves:
  - alias: 0
    position: 0
    vendor_id: "0xZZ"
    product_code: "0x1"
    device_name: x
    device_type: sensor
`},
		{"bad device type", `
slaves:
  - alias: 0
    position: 0
    vendor_id: "0x1"
    product_code: "0x1"
    device_name: x
    device_type: toaster
`},
		{"not yaml", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
