package validator

import (
	"fmt"
	"regexp"
	"strings"

	"authorship-service/internal/apperr"
	"authorship-service/internal/models"
)

// MaxAmount is the gateway-imposed ceiling per purchase, in rupees.
const MaxAmount int64 = 500000

var (
	phoneRegex   = regexp.MustCompile(`^[6-9]\d{9}$`)
	ifscRegex    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	accountRegex = regexp.MustCompile(`^\d{9,18}$`)
	unsafeChars  = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")
)

func IsPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

func IsIFSC(ifsc string) bool {
	return ifscRegex.MatchString(ifsc)
}

func IsAccountNumber(account string) bool {
	return accountRegex.MatchString(account)
}

// SanitizeName trims the name and strips markup characters.
func SanitizeName(name string) string {
	return strings.TrimSpace(unsafeChars.Replace(strings.TrimSpace(name)))
}

func ValidatePhone(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return apperr.Invalid("phone_number", "Phone number is required")
	}
	if !IsPhone(phone) {
		return apperr.Invalid("phone_number", "Invalid phone number format")
	}
	return nil
}

func ValidateName(name string) error {
	if len([]rune(SanitizeName(name))) < 2 {
		return apperr.Invalid("name", "Name must be at least 2 characters")
	}
	return nil
}

func ValidateIFSC(ifsc string) error {
	if ifsc == "" {
		return apperr.Invalid("ifsc", "IFSC code is required")
	}
	if !IsIFSC(ifsc) {
		return apperr.Invalid("ifsc", "Invalid IFSC code")
	}
	return nil
}

func ValidateAccountNumber(account string) error {
	if account == "" {
		return apperr.Invalid("bank_account", "Bank account number is required")
	}
	if !IsAccountNumber(account) {
		return apperr.Invalid("bank_account", "Bank account number must be 9 to 18 digits")
	}
	return nil
}

// ValidateAmount checks 0 < amount <= MaxAmount.
func ValidateAmount(amount int64) error {
	if amount <= 0 || amount > MaxAmount {
		return apperr.Invalid("amount", fmt.Sprintf("Amount must be between 1 and %d", MaxAmount))
	}
	return nil
}

// ValidatePayer checks buyer details in a fixed order and returns the first violation.
// The returned copy has a sanitized name and an uppercased IFSC.
func ValidatePayer(p models.Payer, method models.PaymentMethod) (models.Payer, error) {
	out := p
	out.Phone = strings.TrimSpace(p.Phone)
	out.IFSC = strings.ToUpper(strings.TrimSpace(p.IFSC))
	out.AccountNumber = strings.TrimSpace(p.AccountNumber)

	if err := ValidatePhone(out.Phone); err != nil {
		return out, err
	}
	if err := ValidateName(p.Name); err != nil {
		return out, err
	}
	out.Name = SanitizeName(p.Name)

	switch method {
	case models.PaymentMethodWallet:
	case models.PaymentMethodBankVerify:
		if err := ValidateAccountNumber(out.AccountNumber); err != nil {
			return out, err
		}
		if err := ValidateIFSC(out.IFSC); err != nil {
			return out, err
		}
	default:
		return out, apperr.Invalid("payment_method", "Unsupported payment method")
	}

	return out, nil
}
