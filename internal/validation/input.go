package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MaxEvidenceLength     = 5000
	MaxFeelingsLength     = 2000
	MaxNeedsLength        = 2000
	MaxAddendumLength     = 2000
	MaxResolutionIDLength = 100
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEvidence проверяет длину показаний. Пустые поля отклоняет сама сессия.
func ValidateEvidence(evidence, feelings, needs string) error {
	if err := ValidateLength("текст доказательств", strings.TrimSpace(evidence), 0, MaxEvidenceLength); err != nil {
		return err
	}
	if err := ValidateLength("описание чувств", strings.TrimSpace(feelings), 0, MaxFeelingsLength); err != nil {
		return err
	}
	return ValidateLength("описание потребностей", strings.TrimSpace(needs), 0, MaxNeedsLength)
}

// ValidateAddendum проверяет текст дополнения к вердикту.
func ValidateAddendum(text string) error {
	return ValidateLength("текст дополнения", strings.TrimSpace(text), 0, MaxAddendumLength)
}

// ValidateResolutionID проверяет идентификатор варианта решения.
func ValidateResolutionID(id string) error {
	if strings.ContainsAny(id, "\n\r\t") {
		return fmt.Errorf("идентификатор решения содержит недопустимые символы")
	}
	return ValidateLength("идентификатор решения", id, 0, MaxResolutionIDLength)
}
