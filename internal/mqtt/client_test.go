package mqtt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/util"

	"github.com/stretchr/testify/assert"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestClientId(t *testing.T) {

	assert := assert.New(t)

	a := ClientId("exportguard")
	b := ClientId("exportguard")
	assert.True(strings.HasPrefix(a, "exportguard_"))
	assert.Len(a, len("exportguard_")+8)
	assert.NotEqual(a, b)
}

func TestHADiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)

	sensors := domain.ControlSensors(bridge)
	bridgeMsg := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("exportguard/bridge/state", bridgeMsg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, bridgeMsg.PayloadOn)

	powerMsg := GenericSensorToHADiscoveryMessage(client, sensors[1])
	assert.Equal("exportguard/sensor/site_power/state", powerMsg.StateTopic)
	assert.Equal("W", powerMsg.UnitOfMeasurement)
	assert.Equal(uint(domain.SENSOR_EXPIRE_AFTER_SECONDS), powerMsg.ExpireAfter)
	assert.Equal("exportguard", powerMsg.Origin.Name)
	assert.Equal("exportguard/bridge/state", powerMsg.AvTopic)
	assert.Equal("homeassistant/sensor/"+bridge.Id+"/site_power/config", HADiscoverySensorTopic(client, sensors[1]))

	deenergized := GenericSensorToHADiscoveryMessage(client, sensors[len(sensors)-1])
	assert.Equal("exportguard/binary_sensor/deenergized/state", deenergized.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, deenergized.PayloadOn)

	switches := domain.ControlSwitches(bridge)
	switchMsg := GenericSwitchToHADiscoveryMessage(client, switches[0])
	assert.Equal("exportguard/switch/apply_control/command", switchMsg.CommandTopic)
	assert.Equal("homeassistant/switch/"+bridge.Id+"/apply_control/config", HADiscoverySwitchTopic(client, switches[0]))

	payload, err := json.Marshal(switchMsg)
	assert.NoError(err)
	assert.Contains(string(payload), `"platform":"mqtt"`)
}
