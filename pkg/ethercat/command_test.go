package ethercat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBLDCCommandEnvelope(t *testing.T) {
	tests := []struct {
		name string
		cmd  BLDCCommand
		want bool
	}{
		{"disabled always valid", BLDCCommand{Enable: false, Mode: ModeVelocity, TargetVelocity: 1e9}, true},
		{"mode disabled valid", BLDCCommand{Enable: true, Mode: ModeDisabled}, true},
		{"velocity in range", BLDCCommand{Enable: true, Mode: ModeVelocity, TargetVelocity: 1500}, true},
		{"velocity negative in range", BLDCCommand{Enable: true, Mode: ModeVelocity, TargetVelocity: -9999}, true},
		{"velocity at limit", BLDCCommand{Enable: true, Mode: ModeVelocity, TargetVelocity: BLDCMaxVelocityRPM}, true},
		{"velocity over limit", BLDCCommand{Enable: true, Mode: ModeVelocity, TargetVelocity: 10001}, false},
		{"torque in range", BLDCCommand{Enable: true, Mode: ModeTorque, TargetTorque: -50}, true},
		{"torque over limit", BLDCCommand{Enable: true, Mode: ModeTorque, TargetTorque: 100.5}, false},
		{"position always rejected", BLDCCommand{Enable: true, Mode: ModePosition}, false},
		{"position rejected even at zero", BLDCCommand{Enable: true, Mode: ModePosition, TargetVelocity: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Valid())
		})
	}
}

func TestServoCommandEnvelope(t *testing.T) {
	servo := func(mode ControlMode, pos, vel, torque float64) ServoCommand {
		return ServoCommand{
			Enable:         true,
			Mode:           mode,
			TargetPosition: pos,
			TargetVelocity: vel,
			TargetTorque:   torque,
			MaxVelocity:    10.0,
			MaxTorque:      100.0,
		}
	}

	tests := []struct {
		name string
		cmd  ServoCommand
		want bool
	}{
		{"disabled always valid", ServoCommand{Enable: false, Mode: ModePosition, TargetPosition: 1e9}, true},
		{"position in rotation range", servo(ModePosition, math.Pi, 1.0, 0), true},
		{"position in linear range", servo(ModePosition, 8.5, 1.0, 0), true},
		{"position outside both ranges", servo(ModePosition, 100.0, 1.0, 0), false},
		{"position with negative velocity", servo(ModePosition, 1.0, -0.1, 0), false},
		{"position with excess velocity", servo(ModePosition, 1.0, 10.5, 0), false},
		{"velocity in range", servo(ModeVelocity, 0, 5.0, 0), true},
		{"velocity negative", servo(ModeVelocity, 0, -1.0, 0), false},
		{"velocity over max", servo(ModeVelocity, 0, 10.1, 0), false},
		{"torque in range", servo(ModeTorque, 0, 0, 99.0), true},
		{"torque negative", servo(ModeTorque, 0, 0, -1.0), false},
		{"torque over max", servo(ModeTorque, 0, 0, 101.0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Valid())
		})
	}
}

func TestControlWordEncoding(t *testing.T) {
	assert.Equal(t, uint16(0), controlWord(false, ModeVelocity))
	assert.Equal(t, uint16(0), controlWord(true, ModeDisabled))
	assert.Equal(t, uint16(0x0003), controlWord(true, ModePosition))
	assert.Equal(t, uint16(0x0005), controlWord(true, ModeVelocity))
	assert.Equal(t, uint16(0x0007), controlWord(true, ModeTorque))
}
