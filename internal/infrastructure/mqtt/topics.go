package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "lightswitch"

// Topics builds the MQTT topics the state mirror publishes to.
//
//	topics := mqtt.Topics{Prefix: "lightswitch"}
//	topics.DeviceState("led1") // "lightswitch/state/led1"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// DeviceState returns the retained state topic for one device.
//
// Example: lightswitch/state/led1
func (t Topics) DeviceState(device string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix(), device)
}

// SystemStatus returns the topic carrying online/offline status and the LWT.
//
// Example: lightswitch/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}
