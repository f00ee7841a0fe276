package canbus

// Frame is a CAN frame: an 11- or 29-bit identifier, up to 8 data bytes
// and its DLC. Mirrors gocanopen's Frame (bus.go) trimmed to what the
// Victron PGN set needs — standard 11-bit identifiers, 8-byte payloads.
type Frame struct {
	ID       uint32
	DLC      uint8
	Data     [8]byte
	Extended bool
}
