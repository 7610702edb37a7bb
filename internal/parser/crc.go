package parser

// crcPoly is the CCITT polynomial used by CRC-16/XMODEM.
const crcPoly = 0x1021

// Checksum computes CRC-16/XMODEM over b: init 0, MSB-first, no reflection,
// no final xor.
func Checksum(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
