// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/eos_sensor/internal/codec"
	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
)

// SampleMessage is the JSON document published for every received sample.
type SampleMessage struct {
	Session string `json:"session"`
	Device  string `json:"device"`
	imu.Sample
}

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// Collector accepts node sessions over WebSocket and republishes their samples.
type Collector struct {
	upgrader websocket.Upgrader
	pub      Publisher
	topic    string

	sessions atomic.Int64
}

// NewCollector publishes samples under topic/<device id>.
func NewCollector(pub Publisher, topic string) *Collector {
	return &Collector{
		upgrader: websocket.Upgrader{
			// nodes are headless and send their own address as Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pub:   pub,
		topic: topic,
	}
}

// Active returns the number of open sessions.
func (c *Collector) Active() int64 { return c.sessions.Load() }

func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("collector: upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	c.sessions.Add(1)
	defer c.sessions.Add(-1)
	log.Printf("collector: session %s from %s", id, r.RemoteAddr)

	typ, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("collector: session %s: no identification: %v", id, err)
		return
	}
	if typ != websocket.TextMessage || len(data) == 0 {
		log.Printf("collector: session %s: expected device id text frame", id)
		return
	}
	device := string(data)
	topic := c.topic + "/" + device
	log.Printf("collector: session %s is %q", id, device)

	var batches, samples, bytes uint64
	start := time.Now()
	defer func() {
		log.Printf("collector: session %s (%s) closed after %s: %d batches, %s samples, %s",
			id, device, time.Since(start).Round(time.Second), batches, humanize.Comma(int64(samples)), humanize.Bytes(bytes))
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("collector: session %s read error: %v", id, err)
			}
			return
		}
		if typ != websocket.BinaryMessage {
			log.Printf("collector: session %s: ignoring text frame", id)
			continue
		}
		bytes += uint64(len(data))

		batch, err := codec.Decode(data)
		if err != nil {
			log.Printf("collector: session %s: bad batch: %v", id, err)
			continue
		}
		batches++
		samples += uint64(len(batch))

		for _, s := range batch {
			payload, err := json.Marshal(SampleMessage{Session: id, Device: device, Sample: s})
			if err != nil {
				log.Printf("collector: json marshal error: %v", err)
				continue
			}
			if err := c.pub.Publish(topic, payload); err != nil {
				log.Printf("collector: MQTT publish error (%s): %v", topic, err)
			}
		}
	}
}

// RunCollector serves node sessions on COLLECTOR_LISTEN_ADDR until ctx is cancelled.
func RunCollector(ctx context.Context) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCollector)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("collector: connected to MQTT broker at %s", cfg.MQTTBroker)

	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, NewCollector(mqttPublisher{client: client}, cfg.TopicSamples))

	srv := &http.Server{
		Addr:              cfg.CollectorListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("collector: listening on %s%s, publishing to %s/<device>", cfg.CollectorListenAddr, cfg.WSPath, cfg.TopicSamples)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
