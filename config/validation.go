package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report koanf paths (datasources[primary].host) instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks cfg and returns a *ConfigError describing the first problem.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	for _, name := range sortedNames(cfg.Datasources) {
		if err := validateDatasource(name, cfg.Datasources[name]); err != nil {
			return err
		}
	}

	if cfg.Transaction.Default != "" {
		if _, ok := cfg.Datasources[cfg.Transaction.Default]; !ok {
			return NewInvalidFieldError("transaction.default",
				fmt.Sprintf("datasource '%s' is not configured", cfg.Transaction.Default), sortedNames(cfg.Datasources))
		}
	} else if len(cfg.Datasources) > 1 {
		return NewMissingFieldError("transaction.default", EnvVar("transaction.default"), "transaction.default")
	}
	return nil
}

func validateDatasource(name string, ds DatasourceConfig) error {
	path := "datasources." + name
	if ds.ConnectionString != "" {
		return nil
	}
	switch ds.Type {
	case PostgreSQL:
		if ds.Database == "" {
			return NewMissingFieldError(path+".database", EnvVar(path+".database"), path+".database")
		}
	case Oracle:
		if ds.ServiceName == "" && ds.SID == "" && ds.Database == "" {
			return NewInvalidFieldError(path, "oracle requires a service name, sid or database",
				[]string{"servicename", "sid", "database"})
		}
	}
	if ds.Mode != "" && ds.Type != PostgreSQL {
		return NewValidationError(path+".mode", "mode is only supported for postgresql datasources")
	}
	return nil
}

func fieldError(fe validator.FieldError) *ConfigError {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required", "required_without":
		return NewMissingFieldError(field, EnvVar(field), field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("unsupported value '%v'", fe.Value()), strings.Fields(fe.Param()))
	case "min", "max":
		return NewValidationError(field, fmt.Sprintf("must be %s %s", boundWord(fe.Tag()), fe.Param()))
	default:
		return NewValidationError(field, fmt.Sprintf("failed '%s' validation", fe.Tag()))
	}
}

// fieldPath turns "Config.datasources[primary].host" into "datasources.primary.host".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	rest = strings.ReplaceAll(rest, "[", ".")
	return strings.ReplaceAll(rest, "]", "")
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}

func sortedNames(m map[string]DatasourceConfig) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
