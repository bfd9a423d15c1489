package model

import (
	"strings"

	"golang.org/x/text/language"
)

// Language selects prompts, search restriction and formatting
type Language string

const (
	English Language = "english"
	French  Language = "french"
)

var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.French})

// ParseLanguage accepts "english"/"french" or any BCP-47 tag in those languages
func ParseLanguage(s string) (Language, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	switch raw {
	case "":
		return English, nil
	case string(English):
		return English, nil
	case string(French), "français", "francais":
		return French, nil
	}

	tag, err := language.Parse(raw)
	if err != nil {
		return "", Validationf("unsupported language %q", s)
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return "", Validationf("unsupported language %q", s)
	}
	if idx == 1 {
		return French, nil
	}
	return English, nil
}

// Validate returns a validation error for anything but English or French
func (l Language) Validate() error {
	if l != English && l != French {
		return Validationf("unsupported language %q", string(l))
	}
	return nil
}

// Code returns the two-letter code used by search backends
func (l Language) Code() string {
	if l == French {
		return "fr"
	}
	return "en"
}
