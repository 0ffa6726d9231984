package mqtt

import (
	"fmt"

	"github.com/berfenger/exportguard/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const HA_PLATFORM = "mqtt"

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	Origin            HADiscoveryOrigin `json:"origin"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	Precision         *int              `json:"suggested_display_precision,omitempty"`
	ExpireAfter       uint              `json:"expire_after,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type HADiscoveryOrigin struct {
	Name    string `json:"name"`
	Version string `json:"sw_version,omitempty"`
}

func HADiscoverySensorTopic(client *MQTTClient, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", client.HADiscoveryTopic(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoverySwitchTopic(client *MQTTClient, sw domain.GenericSwitch) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", client.HADiscoveryTopic(), sw.Device.Id, sw.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	msg := entity(client, sensor.Device, sensor.Name, sensor.UniqueId, sensor.Icon)
	msg.StateClass = sensor.StateClass
	msg.DeviceClass = sensor.DeviceClass
	msg.UnitOfMeasurement = sensor.UnitOfMeasurement
	msg.Precision = sensor.Precision
	msg.ExpireAfter = sensor.ExpireAfterSeconds
	msg.EntityCategory = sensor.EntityCategory
	msg.EnabledByDefault = sensor.EnabledByDefault

	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		// the bridge state is its own availability
		msg.StateTopic = client.BridgeStateTopic()
		msg.PayloadOn = MQTT_PAYLOAD_ONLINE
		msg.PayloadOff = MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		msg.StateTopic = client.BinarySensorStateTopic(sensor.Id)
		msg.PayloadOn = MQTT_PAYLOAD_ON
		msg.PayloadOff = MQTT_PAYLOAD_OFF
	default:
		msg.StateTopic = client.SensorStateTopic(sensor.Id)
	}
	return msg
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, sw domain.GenericSwitch) HADiscoveryConfig {
	msg := entity(client, sw.Device, sw.Name, sw.UniqueId, sw.Icon)
	msg.StateTopic = client.SwitchStateTopic(sw.Id)
	msg.CommandTopic = client.SwitchCommandTopic(sw.Id)
	msg.PayloadOn = MQTT_PAYLOAD_ON
	msg.PayloadOff = MQTT_PAYLOAD_OFF
	return msg
}

func entity(client *MQTTClient, d domain.Device, name, uniqueId, icon string) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device: HADiscoveryDevice{
			Id:           []string{d.Id},
			Manufacturer: d.Manufacturer,
			Version:      d.Version,
			Model:        d.Model,
			Name:         d.Name,
			ViaDevice:    d.ViaDevice,
		},
		Origin: HADiscoveryOrigin{
			Name:    "exportguard",
			Version: versioninfo.Short(),
		},
		AvTopic:  client.BridgeStateTopic(),
		Name:     name,
		UniqueId: uniqueId,
		Icon:     icon,
		Platform: HA_PLATFORM,
	}
}
