/*
Package ethercat implements the fieldbus half of the CORE: the master
port, the PDO codec, the per-cycle sensor read and actuator write stages,
motor command validation, the YAML slave configuration, and the cycle
driver the RT executive invokes every tick.

The cycle ordering contract is fixed: actuator bytes (outputs and motor
commands) are encoded into the process image before Send, and sensor
fields are decoded after Receive. Commands that fail their safety envelope
are dropped without touching the process image, so the previous cycle's
bytes keep driving the bus and the Non-RT writer is free to retry.

The driver never surfaces errors synchronously. Failures are counted,
published as ETHERCAT_ERROR events, and escalated into SAFE_MODE through
the state machine once the consecutive streak passes ErrorThreshold.
*/
package ethercat
