// Package monitor is the orchestration core: it keeps one provider
// handle running per enabled machine and reconciles their emissions
// into a single authoritative status table.
//
// The moving parts:
//
//   - Reconciler: the status table. Last write wins, gated by handle
//     generation so envelopes from superseded handles are dropped.
//     Accepted updates fan out to subscribers (WebSocket hub, MQTT
//     republisher, telemetry writer).
//   - Handle: one running provider plus its pump and liveness
//     goroutines. Silence beyond the offline window synthesizes an
//     offline status through the same accept path as real emissions.
//   - Orchestrator: converges handles onto the registration set via
//     Sync; every start bumps the machine's generation.
//   - Dispatcher: routes pause/resume/cancel to the running handle and
//     returns the provider's verdict unchanged.
package monitor
