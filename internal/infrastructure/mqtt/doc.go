// Package mqtt provides the MQTT broker adapter used to ingest gateway
// telemetry and relay selected messages outward.
//
// This package manages:
//   - Connection to the broker with bounded-timeout connect and
//     auto-reconnect with exponential backoff
//   - Local wildcard-aware dispatch so a single inbound message can reach
//     every handler whose registered pattern matches
//   - Topic subscriptions with "+"/"#" wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The two gateway families (FamilyB, FamilyT) publish frames onto the
// broker under their own topic roots; the ingest pipeline subscribes to
// both wildcards and routes decoded messages onward. The message relay
// republishes a subset of canonical records back onto the broker
// under rewritten topics.
//
//	Gateways ↔ MQTT Broker ↔ Ingest Pipeline ↔ sinks (DB, cache, relay)
//
// # Performance Characteristics
//
//   - Connect: bounded to 5s, degraded mode on timeout
//   - Publish latency: <10ms for QoS 1 to a local broker
//   - Reconnect: exponential backoff between configured min/max delays
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllFamilyB(), 1,
//	    func(topic string, payload []byte) error {
//	        return pipe.HandleFrame(topic, payload)
//	    })
package mqtt
