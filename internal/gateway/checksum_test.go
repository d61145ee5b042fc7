package gateway

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t,
		"55ea98a52ecba3cd69f26a66b2fe69839b0c54d4f880ee873056b24b61a47b4f###1",
		Checksum("abc"+walletPayPath, "salt-key", 1))
	assert.Equal(t,
		"a544c860cf2a46812764f9d05b440bb25c495f5c1501d9ba4ba2498120e9be8d###2",
		Checksum("/pg/v1/status/MID/TXN_1", "salt-key", 2))
}

func TestVerifyChecksum(t *testing.T) {
	header := Checksum("payload", "salt", 1)

	assert.True(t, VerifyChecksum(header, "payload", "salt", 1))
	assert.False(t, VerifyChecksum(header, "payload", "other-salt", 1))
	assert.False(t, VerifyChecksum(header, "payload", "salt", 2))
	assert.False(t, VerifyChecksum("", "payload", "salt", 1))
}

func TestNewTransactionID(t *testing.T) {
	pattern := regexp.MustCompile(`^TXN_\d{13}_[0-9a-f]{8}$`)

	a := NewTransactionID(PrefixPayment)
	b := NewTransactionID(PrefixPayment)

	assert.Regexp(t, pattern, a)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^REF_`, NewTransactionID(PrefixRefund))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(810000), ToMinorUnits(8100))
	assert.Equal(t, int64(8100), FromMinorUnits(810000))
	assert.Equal(t, int64(1), FromMinorUnits(50))
}
