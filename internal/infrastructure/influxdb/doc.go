// Package influxdb provides machine telemetry recording for Shopfloor Core.
//
// Every status envelope accepted by the reconciler can be mirrored into
// InfluxDB as time-series points: one machine_status point per envelope and
// one heater_temperature point per heater reading. Writes are batched and
// asynchronous; a failed or disabled InfluxDB never blocks the monitoring
// core.
//
// Usage:
//
//	tsdb, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry history
//	}
//	defer tsdb.Close()
//
//	tsdb.WriteMachineStatus(7, "operational", 0.42, elapsed, remaining)
package influxdb
