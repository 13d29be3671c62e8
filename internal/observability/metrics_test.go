package observability

import "testing"

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()
	c.RecordBeaconSent()
	c.RecordBeaconSent()
	c.RecordSessionOpened()
	c.RecordSessionClosed("peer_closed")
	c.AddBytesIn(46)
	c.AddBytesOut(12)
	c.RecordBadMagic()
	c.RecordUnknownType()
	c.RecordVersionMismatch()
	c.RecordPoseSeqGap()
	c.RecordHapticDropped()

	snap := c.Snapshot()
	if snap.BeaconsSent != 2 {
		t.Fatalf("beacons_sent=%d", snap.BeaconsSent)
	}
	if snap.SessionsOpened != 1 || snap.SessionsClosed != 1 {
		t.Fatalf("sessions opened=%d closed=%d", snap.SessionsOpened, snap.SessionsClosed)
	}
	if snap.BytesIn != 46 || snap.BytesOut != 12 {
		t.Fatalf("bytes in=%d out=%d", snap.BytesIn, snap.BytesOut)
	}
	if snap.BadMagic != 1 || snap.UnknownType != 1 || snap.VersionMismatch != 1 {
		t.Fatalf("codec counters: %+v", snap)
	}
	if snap.PoseSeqGaps != 1 || snap.HapticDropped != 1 {
		t.Fatalf("stream counters: %+v", snap)
	}
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}
