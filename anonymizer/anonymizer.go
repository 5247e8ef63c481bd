// Package anonymizer shortens identities before they reach logs.
package anonymizer

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// MaskAddress keeps the first 6 and last 4 characters of the hex form,
// e.g. 0x7099...79C8.
func MaskAddress(addr common.Address) string {
	return MaskHex(addr.Hex())
}

// MaskHex masks any hex string longer than ten characters.
func MaskHex(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// Identity is a zap field carrying a masked address.
func Identity(addr common.Address) zap.Field {
	return zap.String("identity", MaskAddress(addr))
}
