package mqtt

import "fmt"

// Topic prefixes for the Shopfloor MQTT hierarchy.
//
// Machine topics use the flat scheme: shopfloor/{category}/{machine_id}
const (
	// TopicPrefix is the base for all Shopfloor topics.
	TopicPrefix = "shopfloor"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "shopfloor/system"
)

// Topics provides builders for Shopfloor MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.MachineState(7)
//	// Returns: "shopfloor/state/7"
type Topics struct{}

// MachineState returns the topic where the core republishes reconciled
// machine state (retained JSON).
//
// Example: shopfloor/state/7
func (Topics) MachineState(machineID int64) string {
	return fmt.Sprintf("%s/state/%d", TopicPrefix, machineID)
}

// MachineStatus returns the topic on which a push-based machine agent
// publishes its raw status envelopes.
//
// Example: shopfloor/machines/7/status
func (Topics) MachineStatus(machineID int64) string {
	return fmt.Sprintf("%s/machines/%d/status", TopicPrefix, machineID)
}

// MachineCommand returns the topic on which a push-based machine agent
// receives job commands (pause/resume/cancel).
//
// Example: shopfloor/machines/7/command
func (Topics) MachineCommand(machineID int64) string {
	return fmt.Sprintf("%s/machines/%d/command", TopicPrefix, machineID)
}

// AllMachineStatus returns a pattern matching status envelopes from all machines.
//
// Example: shopfloor/machines/+/status
func (Topics) AllMachineStatus() string {
	return fmt.Sprintf("%s/machines/+/status", TopicPrefix)
}

// SystemStatus returns the topic for core online/offline status (LWT target).
//
// Example: shopfloor/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
