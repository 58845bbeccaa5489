package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"taskdesk/internal/domain"
)

const (
	MaxTitleLen        = 255
	MaxDescriptionLen  = 2000
	MaxNotesLen        = 1000
	MaxCategoryNameLen = 255
	MaxFileNameLen     = 255
)

func checkText(field, v string, required bool, max int) error {
	if required && strings.TrimSpace(v) == "" {
		return domain.Invalid(field, "required")
	}
	if max > 0 && utf8.RuneCountInString(v) > max {
		return domain.Invalid(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}

func normalizePriority(p domain.Priority) (domain.Priority, error) {
	norm, err := domain.ParsePriority(string(p))
	if err != nil {
		return "", domain.Invalid("priority", err.Error())
	}
	return norm, nil
}
