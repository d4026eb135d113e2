package ethercat

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/fsm"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/metrics"
)

// ErrorThreshold is the consecutive-failure count past which the driver
// forces the state machine into SAFE_MODE.
const ErrorThreshold = 10

// SensorKind selects the decode procedure for a registered sensor.
type SensorKind uint8

const (
	SensorPosition SensorKind = iota
	SensorVelocity
	SensorTorque
	SensorDI
	SensorAI
)

// MotorKind selects the command envelope and encoding for a drive.
type MotorKind uint8

const (
	MotorBLDC MotorKind = iota
	MotorServo
)

type sensorReg struct {
	slaveID      uint16
	primaryKey   datastore.Key
	secondaryKey datastore.Key
	kind         SensorKind
	channel      uint8
	scale        float64
}

type outputKind uint8

const (
	outputDigital outputKind = iota
	outputAnalog
)

type outputReg struct {
	slaveID  uint16
	channel  uint8
	key      datastore.Key
	kind     outputKind
	min, max float64
}

type motorReg struct {
	slaveID     uint16
	kind        MotorKind
	positionKey datastore.Key
	velocityKey datastore.Key
	torqueKey   datastore.Key
	modeKey     datastore.Key
	enableKey   datastore.Key
	maxVelocity float64
	maxTorque   float64
}

// Cycle is the per-tick EtherCAT procedure: marshal actuator commands from
// the data store into the PDO domain, exchange the frame, and unmarshal
// sensor inputs back into the store. It never returns errors to the
// executive; failures are counted, published on the event sink, and
// escalated into SAFE_MODE past ErrorThreshold consecutive failures.
//
// Registrations mutate internal tables and are only legal before the
// executive starts RUNNING.
type Cycle struct {
	master  Master
	io      *SensorIO
	motors  *MotorCommander
	machine *fsm.Machine
	sink    events.Sink
	logger  zerolog.Logger

	sensors   []sensorReg
	outputs   []outputReg
	motorRegs []motorReg

	totalCycles   atomic.Uint64
	errorCount    atomic.Uint64
	readSuccess   atomic.Uint64
	writeSuccess  atomic.Uint64
	motorCommands atomic.Uint64

	// consecutive failures; RT thread only.
	streak uint64
}

// NewCycle wires the driver. machine and sink may be nil for bench setups.
func NewCycle(master Master, slaves SlaveDirectory, machine *fsm.Machine, sink events.Sink) *Cycle {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Cycle{
		master:  master,
		io:      NewSensorIO(master, slaves),
		motors:  NewMotorCommander(master, slaves),
		machine: machine,
		sink:    sink,
		logger:  log.WithComponent("cycle"),
	}
}

// RegisterPositionSensor registers an encoder. Raw counts are multiplied by
// scale into physical units and stored as DOUBLE under positionKey and
// velocityKey.
func (c *Cycle) RegisterPositionSensor(slaveID uint16, positionKey, velocityKey datastore.Key, scale float64) error {
	if !positionKey.Valid() || !velocityKey.Valid() {
		return datastore.ErrInvalidKey
	}
	c.sensors = append(c.sensors, sensorReg{
		slaveID:      slaveID,
		primaryKey:   positionKey,
		secondaryKey: velocityKey,
		kind:         SensorPosition,
		scale:        scale,
	})
	c.logger.Info().
		Uint16("slave_id", slaveID).
		Uint16("position_key", uint16(positionKey)).
		Uint16("velocity_key", uint16(velocityKey)).
		Float64("scale", scale).
		Msg("Position sensor registered")
	return nil
}

// RegisterVelocitySensor registers a tachometer stored as DOUBLE under key.
func (c *Cycle) RegisterVelocitySensor(slaveID uint16, key datastore.Key) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.sensors = append(c.sensors, sensorReg{
		slaveID:      slaveID,
		primaryKey:   key,
		secondaryKey: key,
		kind:         SensorVelocity,
		scale:        1.0,
	})
	return nil
}

// RegisterTorqueSensor registers a six-axis force/torque sensor. Only the
// Z-axis torque is stored, as DOUBLE under key.
func (c *Cycle) RegisterTorqueSensor(slaveID uint16, key datastore.Key) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.sensors = append(c.sensors, sensorReg{
		slaveID:      slaveID,
		primaryKey:   key,
		secondaryKey: key,
		kind:         SensorTorque,
		scale:        1.0,
	})
	return nil
}

// RegisterDigitalInput registers one DI channel stored as INT32 {0,1}.
func (c *Cycle) RegisterDigitalInput(slaveID uint16, channel uint8, key datastore.Key) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.sensors = append(c.sensors, sensorReg{
		slaveID:      slaveID,
		primaryKey:   key,
		secondaryKey: key,
		kind:         SensorDI,
		channel:      channel,
		scale:        1.0,
	})
	return nil
}

// RegisterAnalogInput registers one AI channel widened to DOUBLE.
func (c *Cycle) RegisterAnalogInput(slaveID uint16, channel uint8, key datastore.Key) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.sensors = append(c.sensors, sensorReg{
		slaveID:      slaveID,
		primaryKey:   key,
		secondaryKey: key,
		kind:         SensorAI,
		channel:      channel,
		scale:        1.0,
	})
	return nil
}

// RegisterDigitalOutput registers a DO channel driven from an INT32 key.
func (c *Cycle) RegisterDigitalOutput(slaveID uint16, channel uint8, key datastore.Key) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.outputs = append(c.outputs, outputReg{
		slaveID: slaveID,
		channel: channel,
		key:     key,
		kind:    outputDigital,
		min:     0,
		max:     1,
	})
	return nil
}

// RegisterAnalogOutput registers an AO channel driven from a DOUBLE key.
// Values outside [min, max] are dropped and leave the PDO field unchanged.
func (c *Cycle) RegisterAnalogOutput(slaveID uint16, channel uint8, key datastore.Key, min, max float64) error {
	if !key.Valid() {
		return datastore.ErrInvalidKey
	}
	c.outputs = append(c.outputs, outputReg{
		slaveID: slaveID,
		channel: channel,
		key:     key,
		kind:    outputAnalog,
		min:     min,
		max:     max,
	})
	return nil
}

// RegisterBLDCMotor registers a BLDC drive with the default envelope.
func (c *Cycle) RegisterBLDCMotor(slaveID uint16, velocityKey, torqueKey, modeKey, enableKey datastore.Key) error {
	for _, k := range []datastore.Key{velocityKey, torqueKey, modeKey, enableKey} {
		if !k.Valid() {
			return datastore.ErrInvalidKey
		}
	}
	c.motorRegs = append(c.motorRegs, motorReg{
		slaveID:     slaveID,
		kind:        MotorBLDC,
		positionKey: velocityKey, // BLDC drives have no position loop
		velocityKey: velocityKey,
		torqueKey:   torqueKey,
		modeKey:     modeKey,
		enableKey:   enableKey,
		maxVelocity: BLDCMaxVelocityRPM,
		maxTorque:   BLDCMaxTorqueNm,
	})
	c.logger.Info().Uint16("slave_id", slaveID).Msg("BLDC motor registered")
	return nil
}

// RegisterServoMotor registers a servo drive with its velocity and torque
// limits.
func (c *Cycle) RegisterServoMotor(slaveID uint16, positionKey, velocityKey, torqueKey, modeKey, enableKey datastore.Key, maxVelocity, maxTorque float64) error {
	for _, k := range []datastore.Key{positionKey, velocityKey, torqueKey, modeKey, enableKey} {
		if !k.Valid() {
			return datastore.ErrInvalidKey
		}
	}
	c.motorRegs = append(c.motorRegs, motorReg{
		slaveID:     slaveID,
		kind:        MotorServo,
		positionKey: positionKey,
		velocityKey: velocityKey,
		torqueKey:   torqueKey,
		modeKey:     modeKey,
		enableKey:   enableKey,
		maxVelocity: maxVelocity,
		maxTorque:   maxTorque,
	})
	c.logger.Info().Uint16("slave_id", slaveID).Msg("Servo motor registered")
	return nil
}

// Execute runs one full cycle: actuator bytes before Send, sensor reads
// after Receive. Early returns leave the master in whatever state it was.
func (c *Cycle) Execute(store *datastore.Store) {
	if store == nil {
		c.handleError(events.ErrInitialization, "data store not attached", 0)
		return
	}

	for i := range c.outputs {
		c.writeOutput(&c.outputs[i], store)
	}
	for i := range c.motorRegs {
		c.writeMotorCommand(&c.motorRegs[i], store)
	}

	if err := c.master.Send(); err != nil {
		c.handleError(events.ErrSendFailure, "ethercat send failed", 0)
		return
	}
	if err := c.master.Receive(); err != nil {
		c.handleError(events.ErrReceiveFailure, "ethercat receive failed", 0)
		return
	}

	for i := range c.sensors {
		c.readSensor(&c.sensors[i], store)
	}

	c.totalCycles.Add(1)
	metrics.EtherCATCycles.Inc()
	c.streak = 0
}

// ExecuteSafe is the SAFE_MODE cycle: every drive is held at a zeroed
// control word, outputs are left alone, and sensor reads continue so
// operators keep observability.
func (c *Cycle) ExecuteSafe(store *datastore.Store) {
	if store == nil {
		c.handleError(events.ErrInitialization, "data store not attached", 0)
		return
	}

	for i := range c.motorRegs {
		if err := c.motors.WriteSafe(c.motorRegs[i].slaveID); err != nil {
			c.logger.Debug().
				Uint16("slave_id", c.motorRegs[i].slaveID).
				Err(err).
				Msg("Safe command write failed")
		}
	}

	if err := c.master.Send(); err != nil {
		c.handleError(events.ErrSendFailure, "ethercat send failed", 0)
		return
	}
	if err := c.master.Receive(); err != nil {
		c.handleError(events.ErrReceiveFailure, "ethercat receive failed", 0)
		return
	}

	for i := range c.sensors {
		c.readSensor(&c.sensors[i], store)
	}

	c.totalCycles.Add(1)
	metrics.EtherCATCycles.Inc()
	c.streak = 0
}

func (c *Cycle) readSensor(reg *sensorReg, store *datastore.Store) {
	switch reg.kind {
	case SensorPosition:
		data, err := c.io.ReadPosition(reg.slaveID)
		if err != nil || !data.Valid {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Msg("Position sensor read failed")
			return
		}
		store.SetFloat64(reg.primaryKey, float64(data.Position)*reg.scale)
		if reg.secondaryKey != reg.primaryKey {
			store.SetFloat64(reg.secondaryKey, float64(data.Velocity)*reg.scale)
		}

	case SensorVelocity:
		data, err := c.io.ReadVelocity(reg.slaveID)
		if err != nil || !data.Valid {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Msg("Velocity sensor read failed")
			return
		}
		store.SetFloat64(reg.primaryKey, data.Velocity)

	case SensorTorque:
		data, err := c.io.ReadTorque(reg.slaveID)
		if err != nil || !data.Valid {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Msg("Torque sensor read failed")
			return
		}
		store.SetFloat64(reg.primaryKey, data.TorqueZ)

	case SensorDI:
		data, err := c.io.ReadDigitalInput(reg.slaveID, reg.channel)
		if err != nil || !data.Valid {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Uint8("channel", reg.channel).Msg("Digital input read failed")
			return
		}
		v := int32(0)
		if data.Value {
			v = 1
		}
		store.SetInt32(reg.primaryKey, v)

	case SensorAI:
		data, err := c.io.ReadAnalogInput(reg.slaveID, reg.channel)
		if err != nil || !data.Valid {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Uint8("channel", reg.channel).Msg("Analog input read failed")
			return
		}
		store.SetFloat64(reg.primaryKey, data.Value)

	default:
		return
	}

	c.readSuccess.Add(1)
	metrics.SensorReads.Inc()
}

func (c *Cycle) writeOutput(reg *outputReg, store *datastore.Store) {
	switch reg.kind {
	case outputDigital:
		v, err := store.GetInt32(reg.key)
		if err != nil {
			// Missing key means no command this cycle; not an error.
			return
		}
		if err := c.io.WriteDigitalOutput(reg.slaveID, reg.channel, v != 0); err != nil {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Uint8("channel", reg.channel).Err(err).Msg("Digital output write failed")
			return
		}

	case outputAnalog:
		v, err := store.GetFloat64(reg.key)
		if err != nil {
			return
		}
		if err := c.io.WriteAnalogOutput(reg.slaveID, reg.channel, v, reg.min, reg.max); err != nil {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Uint8("channel", reg.channel).Err(err).Msg("Analog output write failed")
			return
		}
	}

	c.writeSuccess.Add(1)
}

func (c *Cycle) writeMotorCommand(reg *motorReg, store *datastore.Store) {
	mode, err := store.GetInt32(reg.modeKey)
	if err != nil {
		return // no command published yet
	}
	enableInt, err := store.GetInt32(reg.enableKey)
	if err != nil {
		return
	}

	ctrlMode := ControlMode(mode)
	enable := enableInt != 0

	switch reg.kind {
	case MotorBLDC:
		cmd := BLDCCommand{
			SlaveID: reg.slaveID,
			Mode:    ctrlMode,
			Enable:  enable,
		}
		if enable && ctrlMode == ModeVelocity {
			if cmd.TargetVelocity, err = store.GetFloat64(reg.velocityKey); err != nil {
				return
			}
		}
		if enable && ctrlMode == ModeTorque {
			if cmd.TargetTorque, err = store.GetFloat64(reg.torqueKey); err != nil {
				return
			}
		}
		if err := c.motors.WriteBLDC(cmd); err != nil {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Err(err).Msg("BLDC command dropped")
			return
		}

	case MotorServo:
		cmd := ServoCommand{
			SlaveID:     reg.slaveID,
			Mode:        ctrlMode,
			Enable:      enable,
			MaxVelocity: reg.maxVelocity,
			MaxTorque:   reg.maxTorque,
		}
		if enable && ctrlMode == ModePosition {
			if cmd.TargetPosition, err = store.GetFloat64(reg.positionKey); err != nil {
				return
			}
			// Profile velocity; default to zero when not published.
			cmd.TargetVelocity, _ = store.GetFloat64(reg.velocityKey)
		}
		if enable && ctrlMode == ModeVelocity {
			if cmd.TargetVelocity, err = store.GetFloat64(reg.velocityKey); err != nil {
				return
			}
		}
		if enable && ctrlMode == ModeTorque {
			if cmd.TargetTorque, err = store.GetFloat64(reg.torqueKey); err != nil {
				return
			}
		}
		if err := c.motors.WriteServo(cmd); err != nil {
			c.logger.Debug().Uint16("slave_id", reg.slaveID).Err(err).Msg("Servo command dropped")
			return
		}
	}

	c.motorCommands.Add(1)
	metrics.MotorCommands.Inc()
}

// handleError counts the failure, publishes it, and escalates into
// SAFE_MODE once the consecutive streak passes ErrorThreshold.
func (c *Cycle) handleError(kind events.ErrorKind, description string, slaveID uint16) {
	c.errorCount.Add(1)
	c.streak++
	metrics.EtherCATErrors.WithLabelValues(string(kind)).Inc()

	c.logger.Error().
		Str("kind", string(kind)).
		Uint16("slave_id", slaveID).
		Msg(description)

	c.sink.Publish(events.Event{
		Type:        events.EventEtherCATError,
		Kind:        kind,
		Description: description,
		SlaveID:     slaveID,
	})

	if c.machine == nil || c.streak <= ErrorThreshold {
		return
	}
	if c.machine.State() == fsm.StateSafeMode || c.machine.State() == fsm.StateShutdown {
		return
	}
	if err := c.machine.HandleEvent(fsm.EventSafeModeEnter); err != nil {
		return
	}
	metrics.SafeModeEntries.Inc()
	c.logger.Warn().
		Uint64("consecutive_errors", c.streak).
		Msg("Consecutive EtherCAT errors, entering SAFE_MODE")
	c.sink.Publish(events.Event{
		Type:   events.EventRTSafeModeEntered,
		Reason: "consecutive ethercat errors",
	})
}

// Statistics accessors; safe from any thread.

func (c *Cycle) TotalCycles() uint64       { return c.totalCycles.Load() }
func (c *Cycle) ErrorCount() uint64        { return c.errorCount.Load() }
func (c *Cycle) ReadSuccessCount() uint64  { return c.readSuccess.Load() }
func (c *Cycle) WriteSuccessCount() uint64 { return c.writeSuccess.Load() }
func (c *Cycle) MotorCommandCount() uint64 { return c.motorCommands.Load() }

// DCEnabled reports the master's distributed-clock state.
func (c *Cycle) DCEnabled() bool { return c.master.DCEnabled() }

// DCSystemTimeOffset surfaces the master's DC offset each call; masters
// without DC report zero.
func (c *Cycle) DCSystemTimeOffset() int32 { return c.master.DCSystemTimeOffset() }
