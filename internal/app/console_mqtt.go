// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
)

func RunConsoleMQTT(ctx context.Context, out io.Writer) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	topic := cfg.TopicSamples + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		line, err := formatSample(msg.Payload())
		if err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, line)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatSample(payload []byte) (string, error) {
	var m SampleMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", err
	}
	return formatLine(m.Device, m.Sample), nil
}

func formatLine(device string, s imu.Sample) string {
	return fmt.Sprintf(
		"[%s] t=%8.3f  ax=%7.3f ay=%7.3f az=%7.3f  gx=%8.2f gy=%8.2f gz=%8.2f  mx=%6.3f my=%6.3f mz=%6.3f",
		device, s.Time,
		s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
		s.Gyroscope.X, s.Gyroscope.Y, s.Gyroscope.Z,
		s.Magnetometer.X, s.Magnetometer.Y, s.Magnetometer.Z,
	)
}
