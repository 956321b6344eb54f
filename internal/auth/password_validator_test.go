package auth

import (
	"testing"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"pgregory.net/rapid"
)

func TestPasswordComplexityValidation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		validator := NewPasswordValidator()
		password := rapid.StringN(0, 20, 20).Draw(t, "password")

		hasUpper, hasLower, hasNumber, hasSpecial := false, false, false, false
		for _, char := range password {
			switch {
			case unicode.IsUpper(char):
				hasUpper = true
			case unicode.IsLower(char):
				hasLower = true
			case unicode.IsDigit(char):
				hasNumber = true
			case unicode.IsPunct(char) || unicode.IsSymbol(char):
				hasSpecial = true
			}
		}

		errors := validator.ValidatePassword(password)
		expectedErrorCount := 0
		if len(password) < MinPasswordLength {
			expectedErrorCount++
		}
		if !hasUpper {
			expectedErrorCount++
		}
		if !hasLower {
			expectedErrorCount++
		}
		if !hasNumber {
			expectedErrorCount++
		}
		if !hasSpecial {
			expectedErrorCount++
		}

		if len(errors) != expectedErrorCount {
			t.Errorf("expected %d errors, got %d", expectedErrorCount, len(errors))
		}
	})
}

func TestHashPasswordUsesConfiguredCost(t *testing.T) {
	validator := NewPasswordValidator()

	hash, err := validator.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("failed to read cost: %v", err)
	}
	if cost != BcryptCost {
		t.Errorf("expected cost %d, got %d", BcryptCost, cost)
	}

	if err := validator.VerifyPassword(testPassword, hash); err != nil {
		t.Errorf("expected the hash to verify against its password: %v", err)
	}
	if err := validator.VerifyPassword("Wrong!Passw0rd", hash); err == nil {
		t.Error("expected a wrong password to fail verification")
	}
}
