package validator

import (
	"testing"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPhone(t *testing.T) {
	assert.True(t, IsPhone("9876543210"))
	assert.True(t, IsPhone("6000000000"))
	assert.False(t, IsPhone("5876543210"))
	assert.False(t, IsPhone("987654321"))
	assert.False(t, IsPhone("98765432100"))
	assert.False(t, IsPhone("98765x3210"))
}

func TestIsIFSC(t *testing.T) {
	assert.True(t, IsIFSC("HDFC0001234"))
	assert.True(t, IsIFSC("SBIN0ABC123"))
	assert.False(t, IsIFSC("HDFC1001234"))
	assert.False(t, IsIFSC("hdfc0001234"))
	assert.False(t, IsIFSC("HDF0001234"))
}

func TestIsAccountNumber(t *testing.T) {
	assert.True(t, IsAccountNumber("123456789"))
	assert.True(t, IsAccountNumber("123456789012345678"))
	assert.False(t, IsAccountNumber("12345678"))
	assert.False(t, IsAccountNumber("1234567890123456789"))
	assert.False(t, IsAccountNumber("12345678a"))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Asha Rao", SanitizeName("  <Asha Rao>  "))
	assert.Equal(t, "A", SanitizeName(" 'A' "))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(1))
	assert.NoError(t, ValidateAmount(500000))
	assert.ErrorIs(t, ValidateAmount(0), apperr.ErrValidation)
	assert.ErrorIs(t, ValidateAmount(500001), apperr.ErrValidation)
}

func TestValidatePayerOrder(t *testing.T) {
	_, err := ValidatePayer(models.Payer{Name: "x", Phone: "123"}, models.PaymentMethodWallet)
	var fe *apperr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "phone_number", fe.Field)

	_, err = ValidatePayer(models.Payer{Name: " x ", Phone: "9876543210"}, models.PaymentMethodWallet)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "name", fe.Field)

	_, err = ValidatePayer(models.Payer{Name: "Ravi", Phone: "9876543210", AccountNumber: "123456789", IFSC: "bad"}, models.PaymentMethodBankVerify)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ifsc", fe.Field)
}

func TestValidatePayerNormalizes(t *testing.T) {
	p, err := ValidatePayer(models.Payer{
		Name:          "  Ravi & Co ",
		Phone:         " 9876543210 ",
		AccountNumber: "123456789012",
		IFSC:          "hdfc0001234",
	}, models.PaymentMethodBankVerify)

	require.NoError(t, err)
	assert.Equal(t, "Ravi  Co", p.Name)
	assert.Equal(t, "9876543210", p.Phone)
	assert.Equal(t, "HDFC0001234", p.IFSC)
}
