package bmsclient

import "tbvbridge/internal/crc"

// readRegisterBlockNative builds `AA 07 <count> <addr_lo> <addr_hi>
// <crc_lo> <crc_hi>` and expects `AA 07 <byte_count> <data...> <crc_lo>
// <crc_hi>`, with each word little-endian on the wire (§6.1).
func (c *Client) readRegisterBlockNative(start, count uint16, opts Options) ([]uint16, Result) {
	if count == 0 || count > 127 {
		return nil, Result{Outcome: OutcomeProtocolError}
	}
	request := []byte{nativePreamble, nativeCmdReadBlock, byte(count), byte(start), byte(start >> 8)}
	request = crc.AppendLE(request)

	byteCount := int(count) * 2
	expectedRespLen := 3 + byteCount + 2

	payload, result := c.transaction(request, expectedRespLen, opts, func(p []byte) bool {
		if len(p) != 3+byteCount {
			return false
		}
		if p[0] != nativePreamble || p[1] != nativeCmdReadBlock || int(p[2]) != byteCount {
			return false
		}
		return true
	})
	if result.Outcome != OutcomeSuccess {
		return nil, result
	}

	words := make([]uint16, count)
	for i := 0; i < int(count); i++ {
		idx := 3 + i*2
		words[i] = uint16(payload[idx]) | uint16(payload[idx+1])<<8
	}
	return words, result
}

// readRegisterListNative builds `AA 09 <len> <addr_lo> <addr_hi>...
// <crc_lo> <crc_hi>` for a possibly-noncontiguous set of addresses.
func (c *Client) readRegisterListNative(addresses []uint16, opts Options) ([]uint16, Result) {
	if len(addresses) == 0 {
		return nil, Result{Outcome: OutcomeProtocolError}
	}
	payloadLen := len(addresses) * 2
	request := make([]byte, 0, 3+payloadLen+2)
	request = append(request, nativePreamble, nativeCmdReadList, byte(payloadLen))
	for _, addr := range addresses {
		request = append(request, byte(addr), byte(addr>>8))
	}
	request = crc.AppendLE(request)

	expectedRespLen := 3 + payloadLen + 2
	payload, result := c.transaction(request, expectedRespLen, opts, func(p []byte) bool {
		if len(p) != 3+payloadLen {
			return false
		}
		if p[0] != nativePreamble || p[1] != nativeCmdReadList || int(p[2]) != payloadLen {
			return false
		}
		return true
	})
	if result.Outcome != OutcomeSuccess {
		return nil, result
	}

	words := make([]uint16, len(addresses))
	for i := range addresses {
		idx := 3 + i*2
		words[i] = uint16(payload[idx]) | uint16(payload[idx+1])<<8
	}
	return words, result
}

// writeRegisterBlockNative builds `AA 0B <len> <addr_lo> <addr_hi>
// <values...> <crc_lo> <crc_hi>` and expects `AA 01 00 <crc_lo>
// <crc_hi>` for success.
func (c *Client) writeRegisterBlockNative(start uint16, values []uint16, opts Options) Result {
	if len(values) == 0 {
		return Result{Outcome: OutcomeProtocolError}
	}
	payloadLen := len(values) * 2
	request := make([]byte, 0, 5+payloadLen+2)
	request = append(request, nativePreamble, nativeCmdWriteBlock, byte(payloadLen), byte(start), byte(start>>8))
	for _, v := range values {
		request = append(request, byte(v), byte(v>>8))
	}
	request = crc.AppendLE(request)

	_, result := c.transaction(request, 5, opts, validateWriteAck)
	return result
}

// writeRegisterListNative builds `AA 0D <len> (addr,value)... <crc_lo>
// <crc_hi>` for a set of address/value pairs.
func (c *Client) writeRegisterListNative(addresses, values []uint16, opts Options) Result {
	if len(addresses) == 0 || len(addresses) != len(values) {
		return Result{Outcome: OutcomeProtocolError}
	}
	payloadLen := len(addresses) * 4
	request := make([]byte, 0, 3+payloadLen+2)
	request = append(request, nativePreamble, nativeCmdWriteList, byte(payloadLen))
	for i, addr := range addresses {
		v := values[i]
		request = append(request, byte(addr), byte(addr>>8), byte(v), byte(v>>8))
	}
	request = crc.AppendLE(request)

	_, result := c.transaction(request, 5, opts, validateWriteAck)
	return result
}

func validateWriteAck(p []byte) bool {
	if len(p) != 3 {
		return false
	}
	if p[0] != nativePreamble {
		return false
	}
	return p[1] == nativeAck && p[2] == 0x00
}
