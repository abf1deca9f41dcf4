// Package influxdb provides an optional time-series fanout sink alongside
// the relational write buffer.
//
// It wraps the official influxdb-client-go v2 library to give operators a
// queryable time series of sensor readings (temperature, humidity, noise
// level) and decode quality scores, independent of the relational
// sensor_data history kept by the write buffer.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "telemetry",
//	    Bucket: "sensors",
//	}
//
//	client, err := influxdb.Connect(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a temperature/humidity reading
//	client.WriteTempHum("2437871205", 2, 10, 27.41, 56.53)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batchSize, flushInterval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
