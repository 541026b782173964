// Package media resumes and pauses playback when the earbuds come and go.
package media

import (
	"log/slog"
	"sync"

	"budwatch/internal/podstate"
)

// Player controls a media player.
type Player interface {
	Play() error
	Pause() error
}

// AutoPlay sends Play when the tracker goes from Idle to Tracking and Pause
// on the way back. Repeated updates within a state do nothing.
type AutoPlay struct {
	player Player
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewAutoPlay creates an AutoPlay starting in the Idle state.
func NewAutoPlay(player Player, logger *slog.Logger) *AutoPlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoPlay{player: player, logger: logger}
}

// HandleStatus is a tracker callback.
func (a *AutoPlay) HandleStatus(status podstate.DeviceStatus) {
	a.mu.Lock()
	was := a.connected
	a.connected = status.Connected
	a.mu.Unlock()

	switch {
	case status.Connected && !was:
		if err := a.player.Play(); err != nil {
			a.logger.Warn("auto play failed", "error", err)
			return
		}
		a.logger.Info("earbuds connected, resumed playback", "model", status.Model)
	case !status.Connected && was:
		if err := a.player.Pause(); err != nil {
			a.logger.Warn("auto pause failed", "error", err)
			return
		}
		a.logger.Info("earbuds disconnected, paused playback")
	}
}
