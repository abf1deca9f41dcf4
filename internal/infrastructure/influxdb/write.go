package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTempHum writes a single module port's temperature/humidity reading.
//
// This is the primary time-series point for TempHum canonical records
// (one point per position in payload.TempHum).
func (c *Client) WriteTempHum(deviceID string, moduleNumber int, position int, temperature, humidity float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"temp_hum",
		map[string]string{
			"device_id": deviceID,
			"module":    strconv.Itoa(moduleNumber),
			"position":  strconv.Itoa(position),
		},
		map[string]interface{}{
			"temperature": temperature,
			"humidity":    humidity,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteNoise writes a single module port's noise level reading.
func (c *Client) WriteNoise(deviceID string, moduleNumber int, position int, level float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"noise",
		map[string]string{
			"device_id": deviceID,
			"module":    strconv.Itoa(moduleNumber),
			"position":  strconv.Itoa(position),
		},
		map[string]interface{}{
			"level": level,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRfidChange records a single RFID change event (attached, detached,
// changed, or alarm_changed) emitted by the state engine for a module port.
func (c *Client) WriteRfidChange(deviceID string, moduleNumber int, position int, action, rfid string, alarm int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"rfid_change",
		map[string]string{
			"device_id": deviceID,
			"module":    strconv.Itoa(moduleNumber),
			"position":  strconv.Itoa(position),
			"action":    action,
		},
		map[string]interface{}{
			"rfid":  rfid,
			"alarm": alarm,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDoorEvent records a door status change, including the duration the
// door spent in its previous state.
func (c *Client) WriteDoorEvent(deviceID string, moduleNumber int, status string, durationSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"door",
		map[string]string{
			"device_id": deviceID,
			"module":    strconv.Itoa(moduleNumber),
		},
		map[string]interface{}{
			"status":           status,
			"duration_seconds": durationSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQualityScore records the canonical builder's per-record
// quality score, letting operators chart decode/data quality over time
// alongside the sensor series it accompanies.
func (c *Client) WriteQualityScore(deviceID string, messageKind string, score float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"quality_score",
		map[string]string{
			"device_id":    deviceID,
			"message_kind": messageKind,
		},
		map[string]interface{}{
			"score": score,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods above.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is the decoder-assigned record time rather
// than "now" (e.g. a frame replayed from a buffered gateway).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
