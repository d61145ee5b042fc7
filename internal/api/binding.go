package api

import (
	"strings"
	"sync"

	"authorship-service/internal/validator"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators adds the buyer-input tags to gin's validator engine
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*playground.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("phone_in", func(fl playground.FieldLevel) bool {
			return validator.IsPhone(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("ifsc", func(fl playground.FieldLevel) bool {
			return validator.IsIFSC(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
		})
		_ = v.RegisterValidation("account_no", func(fl playground.FieldLevel) bool {
			return validator.IsAccountNumber(strings.TrimSpace(fl.Field().String()))
		})
	})
}
