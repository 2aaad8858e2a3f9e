// Package mqtt provides MQTT connectivity for the Gray Logic DALI bridge.
//
// This package wraps eclipse/paho.mqtt.golang with the conventions used
// across the Gray Logic fabric.
//
// # Features
//
//   - Automatic reconnection with exponential backoff
//   - Subscription restoration after reconnect
//   - Last Will and Testament for crash detection
//   - Panic recovery in message handlers
//   - Topic builders for the DALI bridge topic scheme
//
// # Topics
//
// The bridge uses the flat Gray Logic scheme graylogic/{category}/dali:
//
//	graylogic/frame/dali     decoded bus frames (published)
//	graylogic/send/dali      transmit requests (subscribed)
//	graylogic/ack/dali       transmit acknowledgements (published)
//	graylogic/health/dali    periodic health status (published, retained)
//	graylogic/system/status  online/offline announcements and LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.Send(), 1, handleSend)
package mqtt
