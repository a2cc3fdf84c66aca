package session

import (
	"github.com/deskbridge/deskbridge/internal/protocol"
)

// Targets are the adaptive loop's setpoints, supplied by the host
// application at construction time.
type Targets struct {
	FrameRate     float64 // fps the loop defends
	BandwidthKbps float64 // ceiling before stepping down
}

// frameRateFloor is the fraction of the target below which the loop
// steps toward more compression.
const frameRateFloor = 0.8

// NextSettings is the adaptive quality step: one conservative step per
// evaluation toward more compression when performance is poor, toward
// higher fidelity when comfortably above target. Pure function of its
// inputs; the telemetry plumbing decides when to call it.
func NextSettings(current protocol.QualitySettings, m protocol.ConnectionMetrics, t Targets) protocol.QualitySettings {
	next := current

	poor := m.FrameRate < t.FrameRate*frameRateFloor || m.BandwidthKbps > t.BandwidthKbps
	good := m.FrameRate >= t.FrameRate && m.BandwidthKbps < t.BandwidthKbps*frameRateFloor

	switch {
	case poor:
		if next.Quality < protocol.QualityMax {
			next.Quality++
		}
		if next.Compression < protocol.CompressionMax {
			next.Compression++
		}
	case good:
		if next.Quality > protocol.QualityMin {
			next.Quality--
		}
		if next.Compression > protocol.CompressionMin {
			next.Compression--
		}
	}
	return next
}

// Latency thresholds for the advisory quality classification, in ms.
const (
	latencyExcellent = 100
	latencyGood      = 200
	latencyPoor      = 500
)

// ClassifyLatency derives the display-only connection quality label
// from the latest measured round-trip time. Never used to gate
// functionality.
func ClassifyLatency(latencyMs float64) protocol.ConnectionQuality {
	switch {
	case latencyMs < latencyExcellent:
		return protocol.QualityExcellent
	case latencyMs < latencyGood:
		return protocol.QualityGood
	case latencyMs < latencyPoor:
		return protocol.QualityPoor
	default:
		return protocol.QualityTerrible
	}
}
