package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Transaction id prefixes.
const (
	PrefixPayment = "TXN"
	PrefixRefund  = "REF"
	PrefixBank    = "CF"
)

// Checksum computes hex(sha256(payload + salt)) + "###" + keyIndex.
// Callers append the endpoint path to payload where the scheme requires it.
func Checksum(payload, salt string, keyIndex int) string {
	sum := sha256.Sum256([]byte(payload + salt))
	return hex.EncodeToString(sum[:]) + "###" + strconv.Itoa(keyIndex)
}

// VerifyChecksum compares header against the expected checksum in constant time.
func VerifyChecksum(header, payload, salt string, keyIndex int) bool {
	expected := Checksum(payload, salt, keyIndex)
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}

// NewTransactionID returns PREFIX_<unix millis>_<8 hex chars>.
func NewTransactionID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), uuid.New().String()[:8])
}
