// Package mqtt publishes device state to an MQTT broker.
//
// Hardware controllers (for example an ESP32 driving the LED strips)
// subscribe to the retained per-device topics instead of polling the HTTP
// API. The broker keeps the last state so a controller that reboots picks it
// up immediately.
//
//	lightswitch/state/led1     {"device":"led1","on":true}    retained
//	lightswitch/system/status  {"status":"online",...}        retained, LWT
//
// The client reconnects with exponential backoff. If the process dies
// without a clean disconnect the broker publishes the offline will.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishDeviceState("led1", true)
package mqtt
