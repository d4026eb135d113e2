package datastore

// Key indexes an entry in the data store. Values double as dense array
// indices, so they must stay below MaxKeys. Keys are grouped into reserved
// bands; the RT loop is the sole writer for the sensor and status bands,
// Non-RT processes are the sole writers for the command band.
type Key uint16

// MaxKeys bounds the store. The full array is allocated up front; unused
// keys cost one entry of zeroed memory each.
const MaxKeys = 512

// General robot state (0-99).
const (
	KeyRobotX Key = iota
	KeyRobotY
	KeyRobotZ
	KeyRobotSpeed
	KeyRobotStatus
)

// EtherCAT sensor band (100-199), written by the RT loop.
const (
	KeySensorPosition0 Key = 100 + iota
	KeySensorPosition1
	KeySensorPosition2
	KeySensorPosition3
)

const (
	KeySensorVelocity0 Key = 110 + iota
	KeySensorVelocity1
	KeySensorVelocity2
	KeySensorVelocity3
)

const (
	KeySensorTorque0 Key = 120 + iota
	KeySensorTorque1
	KeySensorTorque2
	KeySensorTorque3
)

const (
	KeySensorDI0 Key = 130 + iota
	KeySensorDI1
	KeySensorDI2
	KeySensorDI3
)

const (
	KeySensorAI0 Key = 140 + iota
	KeySensorAI1
	KeySensorAI2
	KeySensorAI3
)

// EtherCAT motor command band (200-299), written by Non-RT processes.
const (
	KeyMotorCmd0 Key = 200 + iota
	KeyMotorCmd1
	KeyMotorCmd2
	KeyMotorCmd3
	KeyMotorCmd4
	KeyMotorCmd5
	KeyMotorCmd6
	KeyMotorCmd7
)

// EtherCAT master status band (300-319), written by the RT loop.
const (
	KeyMasterStatus Key = 300 + iota
	KeyCycleLatency
	KeyErrorCount
	KeyFrameCount
)

// Valid reports whether the key indexes inside the store.
func (k Key) Valid() bool {
	return k < MaxKeys
}

// SensorKeys returns the position and velocity keys for sensor slot i
// (i < 10).
func SensorKeys(i int) (position, velocity Key) {
	return KeySensorPosition0 + Key(i), KeySensorVelocity0 + Key(i)
}

// MotorKeys returns the command key block for motor slot i. Each drive
// owns eight consecutive keys in the command band starting at 200, of
// which five are used (i < 12).
func MotorKeys(i int) (mode, enable, position, velocity, torque Key) {
	base := KeyMotorCmd0 + Key(i*8)
	return base, base + 1, base + 2, base + 3, base + 4
}
