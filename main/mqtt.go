package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var mqttClient mqtt.Client

// initMQTT connects to the topside broker over the tether. The paho client
// re-establishes the session itself after a disconnect, so this only needs
// to succeed once.
func initMQTT() {
	if !globalSettings.MQTT_Enabled {
		return
	}
	hostname, _ := os.Hostname()
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", globalSettings.MQTTBroker, globalSettings.MQTTPort))
	opts.ClientID = "bathyx-" + hostname
	opts.AutoReconnect = true

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Printf("MQTT - connect to %s:%d failed: %v\n", globalSettings.MQTTBroker, globalSettings.MQTTPort, token.Error())
		return
	}
	mqttClient = client
	log.Printf("MQTT connected to %s:%d\n", globalSettings.MQTTBroker, globalSettings.MQTTPort)
}

// publishDiveData pushes the current measurement to the broker as JSON.
// Called once per second from the heartbeat sender.
func publishDiveData() {
	if !globalSettings.MQTT_Enabled || !isDiveDataValid() {
		return
	}
	if mqttClient == nil {
		initMQTT()
		if mqttClient == nil {
			return
		}
	}
	diveMutex.Lock()
	d := myDive
	diveMutex.Unlock()
	payload, _ := json.Marshal(d)
	mqttClient.Publish(globalSettings.MQTTTopic, 1, false, payload)
}
