package media

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix = "org.mpris.MediaPlayer2."
	mprisPath   = "/org/mpris/MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// MPRIS controls the first MPRIS media player on the session bus.
type MPRIS struct {
	conn *dbus.Conn
}

// NewMPRIS connects to the session bus.
func NewMPRIS() (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &MPRIS{conn: conn}, nil
}

// Play resumes playback.
func (m *MPRIS) Play() error {
	return m.call("Play")
}

// Pause pauses playback.
func (m *MPRIS) Pause() error {
	return m.call("Pause")
}

func (m *MPRIS) call(method string) error {
	var names []string
	if err := m.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	service, ok := firstPlayer(names)
	if !ok {
		return fmt.Errorf("no MPRIS player running")
	}

	obj := m.conn.Object(service, mprisPath)
	if err := obj.Call(playerIface+"."+method, 0).Err; err != nil {
		return fmt.Errorf("%s %s: %w", service, method, err)
	}
	return nil
}

// Close closes the session bus connection.
func (m *MPRIS) Close() error {
	return m.conn.Close()
}

// firstPlayer returns the first MPRIS service name in bus order.
func firstPlayer(names []string) (string, bool) {
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			return name, true
		}
	}
	return "", false
}
