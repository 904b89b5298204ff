package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// ReceiptNo formats a human-facing receipt number from a per-year counter,
// e.g. R-2026-000042.
func ReceiptNo(year, counter int) string {
	return fmt.Sprintf("R-%d-%06d", year, counter)
}
