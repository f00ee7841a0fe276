package bmsclient

import "tbvbridge/internal/crc"

// readRegisterBlockModbus builds the legacy slave-addressed Modbus
// function-0x03 request `<slave> 03 <addr_hi> <addr_lo> <count_hi>
// <count_lo> <crc_lo> <crc_hi>` and expects `<slave> 03 <byte_count>
// <data...> <crc_lo> <crc_hi>` with each word big-endian on the wire,
// per the standard Modbus convention original_source's legacy client
// follows (original_source/legacy/arduino_src/uart/tinybms_uart_client.cpp).
func (c *Client) readRegisterBlockModbus(start, count uint16, opts Options) ([]uint16, Result) {
	if count == 0 {
		return nil, Result{Outcome: OutcomeProtocolError}
	}
	request := []byte{
		modbusSlaveAddress, modbusFuncReadHolds,
		byte(start >> 8), byte(start),
		byte(count >> 8), byte(count),
	}
	request = crc.AppendLE(request)

	byteCount := int(count) * 2
	expectedRespLen := 3 + byteCount + 2

	payload, result := c.transaction(request, expectedRespLen, opts, func(p []byte) bool {
		if len(p) != 3+byteCount {
			return false
		}
		if p[0] != modbusSlaveAddress || p[1] != modbusFuncReadHolds || int(p[2]) != byteCount {
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
		words[i] = uint16(payload[idx])<<8 | uint16(payload[idx+1])
	}
	return words, result
}
