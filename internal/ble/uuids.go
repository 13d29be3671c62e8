package ble

// GATT service and characteristic UUIDs. The low nibble of the last
// byte identifies the characteristic (3..8).
const (
	ServiceUUID       = "1C8FD138-FC18-4846-954D-E509366AEF61"
	CharAuthUUID      = "1C8FD138-FC18-4846-954D-E509366AEF63"
	CharPoseUUID      = "1C8FD138-FC18-4846-954D-E509366AEF64"
	CharHeartbeatUUID = "1C8FD138-FC18-4846-954D-E509366AEF65"
	CharCommandUUID   = "1C8FD138-FC18-4846-954D-E509366AEF66"
	CharHapticUUID    = "1C8FD138-FC18-4846-954D-E509366AEF67"
	CharConfigUUID    = "1C8FD138-FC18-4846-954D-E509366AEF68"
)

// MinMTU is the smallest usable ATT MTU: a pose write is 46 bytes and
// must fit in one characteristic write.
const MinMTU = 64
