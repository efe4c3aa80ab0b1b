package middleware

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities.

// ErrInvalidInput marks request input the transport layer rejects with 400.
var ErrInvalidInput = errors.New("invalid input")

// MaxPromptLength caps submitted prompts; the pipeline passes them to script
// argv, which has platform limits.
const MaxPromptLength = 8192

// ValidatePrompt checks length bounds; emptiness is the domain's concern.
func ValidatePrompt(prompt string) error {
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidInput, MaxPromptLength)
	}
	return nil
}

var taskIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// ValidateTaskID validates the backend's uuid task id format.
func ValidateTaskID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: task id cannot be empty", ErrInvalidInput)
	}
	if !taskIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid task id format", ErrInvalidInput)
	}
	return nil
}

var modelPattern = regexp.MustCompile(`^[a-zA-Z0-9._/:-]{1,128}$`)

// ValidateModelName validates an optional chat model override.
func ValidateModelName(model string) error {
	if model == "" {
		return nil // optional field
	}
	if !modelPattern.MatchString(model) {
		return fmt.Errorf("%w: invalid model name", ErrInvalidInput)
	}
	return nil
}

// SanitizeString removes null bytes and control characters from strings.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
