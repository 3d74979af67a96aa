package settlement

import (
	"encoding/base32"
	"encoding/binary"
)

// versionAccountID is the StrKey version byte for ed25519 public keys;
// it makes encoded account identifiers start with "G".
const versionAccountID byte = 6 << 3

// encodedAccountIDLength is the length of an encoded account identifier:
// 35 raw bytes (version + 32-byte key + 2-byte checksum) in unpadded base32.
const encodedAccountIDLength = 56

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// IsValidAccountID reports whether value is a well-formed account
// identifier on the settlement network: an uppercase base32 StrKey with
// the account version byte and a valid CRC16-XModem checksum.
func IsValidAccountID(value string) bool {
	if len(value) != encodedAccountIDLength {
		return false
	}
	raw, err := strkeyEncoding.DecodeString(value)
	if err != nil || len(raw) != 35 {
		return false
	}
	if raw[0] != versionAccountID {
		return false
	}
	payload := raw[:33]
	expected := binary.LittleEndian.Uint16(raw[33:])
	return crc16(payload) == expected
}

// crc16 computes the CRC16-XModem checksum (polynomial 0x1021, zero seed)
// used by the StrKey format.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
