// Package mqtt provides the MQTT client used by Shopfloor Core.
//
// The client wraps eclipse/paho.mqtt.golang with:
//   - Connection management and automatic reconnection with backoff
//   - Subscription tracking and restoration after reconnect
//   - Last Will and Testament on shopfloor/system/status
//   - Panic recovery around message handlers
//
// Two parts of the core use the broker:
//   - The mqttpush provider subscribes to shopfloor/machines/{id}/status to
//     ingest status envelopes pushed by machine-side agents.
//   - The composition root republishes reconciled machine state to the
//     retained shopfloor/state/{id} topics for dashboards and other services.
//
// The broker is optional: when mqtt.enabled is false in config the core runs
// without it and only poll-based providers are available.
package mqtt
