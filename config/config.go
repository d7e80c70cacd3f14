package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// SetupConfig loads the .env file (when present) and binds the environment.
// Configuration is read once at startup and never reloaded.
func SetupConfig(paths ...string) error {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, path := range paths {
		viper.AddConfigPath(path)
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func validateStruct(name string, s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid %s configuration: %s failed '%s' check", name, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid %s configuration: %w", name, err)
	}
	return nil
}
