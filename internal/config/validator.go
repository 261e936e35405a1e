// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// `loader.go` calls `validateStruct` immediately after it unmarshals the
// merged Koanf tree into a `Config` instance.  Any tag mismatch aborts
// startup, so the binary never runs with partial or malformed settings.

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

// validateStruct returns the first validation error, or nil on success.
// Cross-field rules that tags cannot express are checked by hand.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	for form, on := range c.Captcha.Forms {
		if on && len(c.Captcha.Challenges) == 0 {
			return fmt.Errorf("captcha enabled for %q but no challenges configured", form)
		}
	}
	return nil
}
