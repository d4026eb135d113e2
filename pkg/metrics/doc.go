// Package metrics defines the Prometheus collectors for the RT executive,
// the state machine and the EtherCAT cycle driver.
package metrics
