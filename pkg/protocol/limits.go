package protocol

// Frame size limits to prevent DoS via malicious length prefixes.
const (
	// FrameHeaderSize is the size of the length prefix in bytes.
	FrameHeaderSize = 4

	// DefaultMaxFrameBytes is the default maximum frame payload size (1 MiB).
	// Documents for interactive applications fit comfortably within this.
	DefaultMaxFrameBytes = 1 << 20

	// HardMaxFrameBytes is the absolute ceiling for frame payloads (16 MiB).
	// Deployments configuring a higher limit are clamped to this value.
	HardMaxFrameBytes = 16 << 20
)

// ClampMaxFrameBytes normalizes a configured frame limit. Zero or negative
// values select the default; values above the hard ceiling are clamped.
func ClampMaxFrameBytes(limit int64) uint32 {
	if limit <= 0 {
		return DefaultMaxFrameBytes
	}
	if limit > HardMaxFrameBytes {
		return HardMaxFrameBytes
	}
	return uint32(limit)
}
