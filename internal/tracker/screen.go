package tracker

import (
	"github.com/keytally/keytally/pkg/window"

	"go.uber.org/zap"
)

// FallbackPxPerMm is the density of a 96 DPI display, used whenever the
// device does not report a physical size.
const FallbackPxPerMm = 96 / 25.4

// ScreenMetrics converts pixel displacements into physical distance. It is
// computed once at startup and never changes.
type ScreenMetrics struct {
	WidthMM  int
	HeightMM int
	WidthPx  int
	HeightPx int
	PxPerMm  float64
	Fallback bool
}

// NewScreenMetrics derives pixels per millimetre from info. A nil info, or
// one with a zero physical or pixel width, selects FallbackPxPerMm.
func NewScreenMetrics(info *window.DisplayInfo) ScreenMetrics {
	if info == nil {
		return ScreenMetrics{PxPerMm: FallbackPxPerMm, Fallback: true}
	}

	m := ScreenMetrics{
		WidthMM:  info.WidthMM,
		HeightMM: info.HeightMM,
		WidthPx:  info.WidthPx,
		HeightPx: info.HeightPx,
	}
	if info.WidthMM <= 0 || info.HeightMM <= 0 || info.WidthPx <= 0 {
		m.PxPerMm = FallbackPxPerMm
		m.Fallback = true
		return m
	}

	m.PxPerMm = float64(info.WidthPx) / float64(info.WidthMM)
	return m
}

// MeasureScreen queries d for the primary display's metrics.
func MeasureScreen(d window.Detector, logger *zap.Logger) ScreenMetrics {
	info, err := d.GetDisplayInfo()
	if err != nil {
		logger.Warn("display metrics unavailable, assuming 96 DPI", zap.Error(err))
		return NewScreenMetrics(nil)
	}

	m := NewScreenMetrics(info)
	logger.Info("display metrics",
		zap.Int("width_mm", m.WidthMM),
		zap.Int("width_px", m.WidthPx),
		zap.Float64("px_per_mm", m.PxPerMm),
		zap.Bool("fallback", m.Fallback),
	)
	return m
}

// ToMeters converts a pixel distance to meters.
func (m ScreenMetrics) ToMeters(px float64) float64 {
	return px / m.PxPerMm / 1000
}
