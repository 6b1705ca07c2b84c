// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package platform

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
	"github.com/relabs-tech/eos_sensor/internal/sensors"
)

func TestOpenSim(t *testing.T) {
	cfg := config.Default()
	cfg.WSHost = "10.0.0.2"

	p, err := Open(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &sensors.Sim{}, p.Sensor)
	assert.IsType(t, NopIndicator{}, p.Indicator)
	assert.True(t, p.Link.IsLinkUp())
	addr, ok := p.Link.CurrentAddress()
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", addr.String())

	require.NoError(t, p.Sensor.Enable(imu.Accelerometer))
	_, err = p.Sensor.Read(imu.Accelerometer)
	assert.NoError(t, err)

	var key [16]byte
	_, err = p.Rand.Read(key[:])
	assert.NoError(t, err)
}

func TestOpenUnknownBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Board = "stm32"
	_, err := Open(cfg)
	assert.ErrorContains(t, err, "unknown board")
}

func TestLEDMirrorsLink(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", L: gpio.High}
	led, err := NewLED(pin)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pin.L)

	led.SetConnected(true)
	assert.Equal(t, gpio.High, pin.L)
	led.SetConnected(false)
	assert.Equal(t, gpio.Low, pin.L)
}

func TestStaticLink(t *testing.T) {
	assert.True(t, StaticLink{}.IsLinkUp())
	_, ok := StaticLink{}.CurrentAddress()
	assert.False(t, ok)

	addr, ok := StaticLink{Addr: netip.MustParseAddr("192.168.4.2")}.CurrentAddress()
	assert.True(t, ok)
	assert.Equal(t, "192.168.4.2", addr.String())
}

func TestNetLinkMissingInterface(t *testing.T) {
	l := NetLink{Name: "eos-does-not-exist0"}
	assert.False(t, l.IsLinkUp())
	_, ok := l.CurrentAddress()
	assert.False(t, ok)
}

func TestNetLinkLoopback(t *testing.T) {
	iface, err := net.InterfaceByName("lo")
	if err != nil || !running(iface.Flags) {
		t.Skip("no running loopback interface named lo")
	}
	l := NetLink{Name: "lo"}
	assert.True(t, l.IsLinkUp())
	addr, ok := l.CurrentAddress()
	require.True(t, ok)
	assert.True(t, addr.IsLoopback())
}
