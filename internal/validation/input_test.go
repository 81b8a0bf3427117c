package validation

import (
	"strings"
	"testing"
)

func TestValidateLength(t *testing.T) {
	if err := ValidateLength("поле", "абв", 3, 3); err != nil {
		t.Fatalf("длина считается в рунах: %v", err)
	}
	if err := ValidateLength("поле", "аб", 3, 0); err == nil {
		t.Fatalf("ожидали ошибку для короткой строки")
	}
	if err := ValidateLength("поле", "абвг", 0, 3); err == nil {
		t.Fatalf("ожидали ошибку для длинной строки")
	}
}

func TestValidateEvidence(t *testing.T) {
	if err := ValidateEvidence("dishes", "frustrated", "help"); err != nil {
		t.Fatalf("ожидали валидные показания: %v", err)
	}
	if err := ValidateEvidence(strings.Repeat("a", MaxEvidenceLength+1), "f", "n"); err == nil {
		t.Fatalf("ожидали ошибку для слишком длинных доказательств")
	}
	if err := ValidateEvidence("e", "f", strings.Repeat("n", MaxNeedsLength+1)); err == nil {
		t.Fatalf("ожидали ошибку для слишком длинных потребностей")
	}
}

func TestValidateAddendumAndResolution(t *testing.T) {
	if err := ValidateAddendum(strings.Repeat("x", MaxAddendumLength)); err != nil {
		t.Fatalf("граничная длина допустима: %v", err)
	}
	if err := ValidateAddendum(strings.Repeat("x", MaxAddendumLength+1)); err == nil {
		t.Fatalf("ожидали ошибку для длинного дополнения")
	}
	if err := ValidateResolutionID("R1"); err != nil {
		t.Fatalf("ожидали валидный id: %v", err)
	}
	if err := ValidateResolutionID("R1\nR2"); err == nil {
		t.Fatalf("ожидали ошибку для id с переводом строки")
	}
}
