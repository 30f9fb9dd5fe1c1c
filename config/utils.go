package config

import (
	"errors"

	"github.com/go-playground/validator/v10"

	log "github.com/sirupsen/logrus"
)

func validateStruct(validate *validator.Validate, value any) error {
	err := validate.Struct(value)
	if err != nil {
		var invalidValidationError *validator.InvalidValidationError
		if errors.As(err, &invalidValidationError) {
			log.WithError(err).Error("invalid value passed to validation")
			return err
		}
	}
	return err
}
