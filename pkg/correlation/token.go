package correlation

import (
	"encoding/binary"
	"fmt"
)

// TokenSize is the length of an encoded correlation token.
const TokenSize = 8

// EncodeToken renders a request id as an 8-byte big-endian token.
// Negative ids keep their two's complement bit pattern.
func EncodeToken(id int64) []byte {
	tok := make([]byte, TokenSize)
	binary.BigEndian.PutUint64(tok, uint64(id))
	return tok
}

// DecodeToken recovers the request id carried by a token.
func DecodeToken(tok []byte) (int64, error) {
	if len(tok) != TokenSize {
		return 0, fmt.Errorf("invalid correlation token length %d", len(tok))
	}
	return int64(binary.BigEndian.Uint64(tok)), nil
}
