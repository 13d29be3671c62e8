package observability

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	beaconsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "beacon",
			Name:      "beacons_sent_total",
			Help:      "Discovery beacons broadcast.",
		},
	)
	sessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Sessions that reached Connected.",
		},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Sessions closed, by reason.",
		},
		[]string{"reason"},
	)
	bytesIn = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "io",
			Name:      "bytes_in_total",
			Help:      "Payload bytes received across transports.",
		},
	)
	bytesOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "io",
			Name:      "bytes_out_total",
			Help:      "Payload bytes sent across transports.",
		},
	)
	badMagic = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "codec",
			Name:      "bad_magic_total",
			Help:      "Inbound payloads rejected for bad magic.",
		},
	)
	unknownType = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "codec",
			Name:      "unknown_type_total",
			Help:      "Inbound payloads with an unknown message type.",
		},
	)
	versionMismatch = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "session",
			Name:      "version_mismatch_total",
			Help:      "Handshakes rejected for protocol version mismatch.",
		},
	)
	poseSeqGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "stream",
			Name:      "pose_seq_gaps_total",
			Help:      "Gaps observed in the POSE sequence counter.",
		},
	)
	hapticDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telehost",
			Subsystem: "router",
			Name:      "haptic_dropped_total",
			Help:      "HAPTIC sends replaced by a newer value before hitting the wire.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			beaconsSent, sessionsOpened, sessionsClosed,
			bytesIn, bytesOut,
			badMagic, unknownType, versionMismatch,
			poseSeqGaps, hapticDropped,
		)
	})
}

// Counters mirrors the prometheus series as plain atomics so an
// embedding application can snapshot them without scraping.
type Counters struct {
	BeaconsSent     atomic.Uint64
	SessionsOpened  atomic.Uint64
	SessionsClosed  atomic.Uint64
	BytesIn         atomic.Uint64
	BytesOut        atomic.Uint64
	BadMagic        atomic.Uint64
	UnknownType     atomic.Uint64
	VersionMismatch atomic.Uint64
	PoseSeqGaps     atomic.Uint64
	HapticDropped   atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	BeaconsSent     uint64 `json:"beacons_sent"`
	SessionsOpened  uint64 `json:"sessions_opened"`
	SessionsClosed  uint64 `json:"sessions_closed"`
	BytesIn         uint64 `json:"bytes_in"`
	BytesOut        uint64 `json:"bytes_out"`
	BadMagic        uint64 `json:"bad_magic"`
	UnknownType     uint64 `json:"unknown_type"`
	VersionMismatch uint64 `json:"version_mismatch"`
	PoseSeqGaps     uint64 `json:"pose_seq_gaps"`
	HapticDropped   uint64 `json:"haptic_dropped"`
}

func NewCounters() *Counters {
	RegisterMetrics()
	return &Counters{}
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BeaconsSent:     c.BeaconsSent.Load(),
		SessionsOpened:  c.SessionsOpened.Load(),
		SessionsClosed:  c.SessionsClosed.Load(),
		BytesIn:         c.BytesIn.Load(),
		BytesOut:        c.BytesOut.Load(),
		BadMagic:        c.BadMagic.Load(),
		UnknownType:     c.UnknownType.Load(),
		VersionMismatch: c.VersionMismatch.Load(),
		PoseSeqGaps:     c.PoseSeqGaps.Load(),
		HapticDropped:   c.HapticDropped.Load(),
	}
}

func (c *Counters) RecordBeaconSent() {
	c.BeaconsSent.Add(1)
	beaconsSent.Inc()
}

func (c *Counters) RecordSessionOpened() {
	c.SessionsOpened.Add(1)
	sessionsOpened.Inc()
}

func (c *Counters) RecordSessionClosed(reason string) {
	c.SessionsClosed.Add(1)
	sessionsClosed.WithLabelValues(reason).Inc()
}

func (c *Counters) AddBytesIn(n int) {
	c.BytesIn.Add(uint64(n))
	bytesIn.Add(float64(n))
}

func (c *Counters) AddBytesOut(n int) {
	c.BytesOut.Add(uint64(n))
	bytesOut.Add(float64(n))
}

func (c *Counters) RecordBadMagic() {
	c.BadMagic.Add(1)
	badMagic.Inc()
}

func (c *Counters) RecordUnknownType() {
	c.UnknownType.Add(1)
	unknownType.Inc()
}

func (c *Counters) RecordVersionMismatch() {
	c.VersionMismatch.Add(1)
	versionMismatch.Inc()
}

func (c *Counters) RecordPoseSeqGap() {
	c.PoseSeqGaps.Add(1)
	poseSeqGaps.Inc()
}

func (c *Counters) RecordHapticDropped() {
	c.HapticDropped.Add(1)
	hapticDropped.Inc()
}
