// Package mqtt provides MQTT client connectivity for the BellBot server.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// BellBot uses MQTT as the transport between the server and the bell
// controllers installed in schools. The broker decouples the server from
// controllers that sit behind NAT on school networks.
//
//	BellBot Server ↔ MQTT Broker ↔ Bell Controllers
//
// Two controller generations share the broker. Legacy controllers use the
// serial-first request/response topics under "bellbot"; current controllers
// use the kind-first topics under "bellctl". See topics.go for the full
// hierarchy.
//
// # Delivery Ordering
//
// The client sets OrderMatters so paho invokes handlers in broker arrival
// order. Handlers registered here must not block; the bellnet dispatcher
// enqueues and returns, then processes on its own goroutine.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to controller clock reports
//	err = client.Subscribe(mqtt.Topics{}.AllTimeReports(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Ring a bell
//	topic := mqtt.Topics{}.Ring("BB-1042")
//	client.Publish(topic, []byte("1"), 1, false)
package mqtt
