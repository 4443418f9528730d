package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"arm_shn/models"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrIntegrity нарушена целостность данных (например, более двух приборов на месте)
	ErrIntegrity = errors.New("нарушение целостности данных")
	// ErrConflict операция недопустима в текущем состоянии (отчет отправлен или закрыт)
	ErrConflict = errors.New("операция недопустима в текущем состоянии")
)

// ValidationError отклонение входных данных с перечнем причин
type ValidationError struct {
	Violations []models.Violation
}

// Error возвращает причины отклонения одной строкой
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

// newValidationError создает ошибку проверки с одним нарушением
func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Violations: []models.Violation{{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}}}
}

// IsValidationError проверяет, является ли ошибка ошибкой проверки
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func notFound(what string, id uint) error {
	return fmt.Errorf("%s #%d: %w", what, id, ErrNotFound)
}

// lookupError превращает отсутствие записи в ErrNotFound
func lookupError(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what, id)
	}
	return fmt.Errorf("ошибка при получении %s #%d: %w", what, id, err)
}
