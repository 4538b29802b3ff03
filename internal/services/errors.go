package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
)

// domainError converts repository and store failures into billing errors.
// Billing errors raised inside transactions are returned unchanged.
func domainError(op string, err error) error {
	if err == nil {
		return nil
	}

	var billingErr *models.BillingError
	if errors.As(err, &billingErr) {
		return err
	}

	switch {
	case repositories.IsConcurrency(err):
		return models.NewConcurrencyConflictError(op, err)
	case repositories.IsValidation(err):
		return &models.BillingError{
			Op:      op,
			Kind:    models.ErrValidation,
			Code:    models.CodeValidation,
			Message: "Los datos no superaron la validación del almacenamiento",
			Err:     err,
		}
	}
	return models.NewPersistenceError(op, err)
}

// notFoundOr maps a missing entity onto a not found error and anything else through domainError
func notFoundOr(op, entity, id string, err error) error {
	if repositories.IsNotFound(err) {
		return models.NewNotFoundError(op, entity, id)
	}
	return domainError(op, err)
}

// validationError converts validator output into a billing validation error
func validationError(op string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError(op, "", fmt.Sprintf("Datos inválidos: %v", err))
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	verr := models.NewValidationError(op, toSnakeCase(fieldErrs[0].Field()), strings.Join(messages, "; "))
	verr.Err = err
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	field := toSnakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("El campo %s es obligatorio", field)
	case "min":
		return fmt.Sprintf("El campo %s debe tener al menos %s elementos", field, fe.Param())
	case "gt":
		return fmt.Sprintf("El campo %s debe ser mayor que %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("El campo %s debe ser mayor o igual que %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("El campo %s debe ser menor o igual que %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("El campo %s supera la longitud máxima de %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("El campo %s debe ser uno de: %s", field, fe.Param())
	}
	return fmt.Sprintf("El campo %s no es válido", field)
}

// toSnakeCase converts a Go field name such as FranchiseID into franchise_id
func toSnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
