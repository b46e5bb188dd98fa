package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "fps",
		Help:      "Current encoder output FPS reported by ffmpeg",
	}, []string{"session"})

	encoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "dropped_frames_total",
		Help:      "Frames ffmpeg dropped",
	}, []string{"session"})

	encoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "duplicate_frames_total",
		Help:      "Frames ffmpeg duplicated",
	}, []string{"session"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "speed",
		Help:      "Encoding speed relative to real time",
	}, []string{"session"})

	encoderCache   = make(map[string]*EncoderMetrics)
	encoderCacheMu sync.RWMutex
)

// EncoderMetrics holds the latest ffmpeg progress values for a session.
type EncoderMetrics struct {
	FPS             float64 `json:"fps"`
	DroppedFrames   float64 `json:"dropped_frames"`
	DuplicateFrames float64 `json:"duplicate_frames"`
	Speed           float64 `json:"speed"`
}

// SetEncoderFPS sets the encoder FPS for a session.
func SetEncoderFPS(session string, fps float64) {
	encoderFPS.WithLabelValues(session).Set(fps)
	updateEncoderCache(session, func(m *EncoderMetrics) { m.FPS = fps })
}

// SetEncoderDroppedFrames sets the ffmpeg dropped frame count for a session.
func SetEncoderDroppedFrames(session string, count float64) {
	encoderDroppedFrames.WithLabelValues(session).Set(count)
	updateEncoderCache(session, func(m *EncoderMetrics) { m.DroppedFrames = count })
}

// SetEncoderDuplicateFrames sets the ffmpeg duplicate frame count for a session.
func SetEncoderDuplicateFrames(session string, count float64) {
	encoderDuplicateFrames.WithLabelValues(session).Set(count)
	updateEncoderCache(session, func(m *EncoderMetrics) { m.DuplicateFrames = count })
}

// SetEncoderSpeed sets the encoding speed for a session.
func SetEncoderSpeed(session string, speed float64) {
	encoderSpeed.WithLabelValues(session).Set(speed)
	updateEncoderCache(session, func(m *EncoderMetrics) { m.Speed = speed })
}

// DeleteEncoderMetrics removes all encoder series for a session.
func DeleteEncoderMetrics(session string) {
	encoderFPS.DeleteLabelValues(session)
	encoderDroppedFrames.DeleteLabelValues(session)
	encoderDuplicateFrames.DeleteLabelValues(session)
	encoderSpeed.DeleteLabelValues(session)

	encoderCacheMu.Lock()
	delete(encoderCache, session)
	encoderCacheMu.Unlock()
}

// GetEncoderMetrics returns a copy of the latest encoder values, nil if none.
func GetEncoderMetrics(session string) *EncoderMetrics {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	if m, ok := encoderCache[session]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateEncoderCache(session string, update func(*EncoderMetrics)) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	m, ok := encoderCache[session]
	if !ok {
		m = &EncoderMetrics{}
		encoderCache[session] = m
	}
	update(m)
}
