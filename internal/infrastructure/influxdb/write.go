package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMachineStatus records one reconciled status snapshot for a machine.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - machineID: The machine registration id
//   - state: Lifecycle state string (offline, idle, paused, operational)
//   - progress: Job progress fraction [0,1]
//   - elapsed: Elapsed job time
//   - remaining: Estimated remaining job time
func (c *Client) WriteMachineStatus(machineID int64, state string, progress float64, elapsed, remaining time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"machine_status",
		map[string]string{
			"machine_id": strconv.FormatInt(machineID, 10),
			"state":      state,
		},
		map[string]interface{}{
			"progress":          progress,
			"elapsed_seconds":   elapsed.Seconds(),
			"remaining_seconds": remaining.Seconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHeaterTemperature records one heater temperature reading.
//
// Parameters:
//   - machineID: The machine registration id
//   - heater: Heater index (0 = first hotend, bed conventions are provider-defined)
//   - actual: Measured temperature in degrees Celsius
//   - target: Setpoint temperature in degrees Celsius
func (c *Client) WriteHeaterTemperature(machineID int64, heater int, actual, target float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"heater_temperature",
		map[string]string{
			"machine_id": strconv.FormatInt(machineID, 10),
			"heater":     strconv.Itoa(heater),
		},
		map[string]interface{}{
			"actual": actual,
			"target": target,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// Flush forces any batched points to be written immediately.
// Useful before shutdown or in tests.
func (c *Client) Flush() {
	if c.writeAPI != nil {
		c.writeAPI.Flush()
	}
}
