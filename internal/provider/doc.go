// Package provider defines the contract between the monitoring core and
// device integrations.
//
// An integration implements Provider (start/stop plus job commands) and
// exposes a Factory that builds instances from machine registrations.
// Factories are collected in a Registry keyed by machine type tag.
//
// Providers communicate status exclusively through Envelope values
// passed to the EmitFunc they receive at Start. An envelope is an
// immutable point-in-time snapshot; its ID exists for deduplication
// only and is excluded from structural equality.
package provider
