package valueobject

import (
	"strings"

	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

// JudgeType - вариант ИИ-судьи, выбранный при вручении повестки.
type JudgeType string

const (
	JudgeClassic JudgeType = "classic"
	JudgeSwift   JudgeType = "swift"
	JudgeWise    JudgeType = "wise"
)

func (j JudgeType) IsValid() bool {
	switch j {
	case JudgeClassic, JudgeSwift, JudgeWise:
		return true
	}
	return false
}

func NewJudgeType(judge string) (JudgeType, error) {
	j := JudgeType(strings.ToLower(strings.TrimSpace(judge)))
	if j == "" {
		return JudgeClassic, nil
	}
	if !j.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "неизвестный тип судьи")
	}
	return j, nil
}

// Rating - оценка вердикта от 1 до 5 включительно.
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// NewRating проверяет диапазон. Значения вне диапазона отклоняются, а не обрезаются.
func NewRating(value int) (Rating, error) {
	r := Rating(value)
	if r < MinRating || r > MaxRating {
		return 0, apperror.New(apperror.ErrCodeValidation, "оценка должна быть от 1 до 5")
	}
	return r, nil
}
