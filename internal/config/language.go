// Package config provides configuration management for the application.
// This file resolves the language review output is written in.
package config

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// LanguageConfig wraps a parsed BCP 47 tag with helpers for rendering
// language names in prompts and API responses.
type LanguageConfig struct {
	tag language.Tag
}

// promptLanguages maps ISO 639-1 base codes to the wording injected into
// agent prompts. Tags outside this map use the raw tag string.
var promptLanguages = map[string]string{
	"en": "English",
	"zh": "Chinese (Simplified Chinese preferred)",
	"ja": "Japanese",
	"ko": "Korean",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"pt": "Portuguese",
	"ru": "Russian",
	"ar": "Arabic",
}

// ParseLanguage parses a BCP 47 tag such as "en" or "zh-CN". Locale-style
// underscores are accepted ("zh_CN"). Empty or unparseable input falls
// back to English instead of returning an error.
func ParseLanguage(langTag string) (*LanguageConfig, error) {
	trimmed := strings.TrimSpace(langTag)
	if trimmed == "" {
		return &LanguageConfig{tag: language.English}, nil
	}

	tag, err := language.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		tag = language.English
	}
	return &LanguageConfig{tag: tag}, nil
}

// Tag returns the parsed language tag.
func (lc *LanguageConfig) Tag() language.Tag {
	return lc.tag
}

// String renders the canonical tag form, e.g. "en" or "zh-CN".
func (lc *LanguageConfig) String() string {
	return lc.tag.String()
}

// DisplayName returns the ISO 639-1 base code, e.g. "zh" for "zh-CN".
func (lc *LanguageConfig) DisplayName() string {
	base, _ := lc.tag.Base()
	return base.String()
}

// PromptInstruction returns the language wording agents are asked to
// write review output in.
func (lc *LanguageConfig) PromptInstruction() string {
	base, _ := lc.tag.Base()
	if name, ok := promptLanguages[base.String()]; ok {
		return name
	}
	return lc.tag.String()
}

// localeEnvVars in resolution order. LC_ALL overrides the narrower
// LC_MESSAGES, which overrides LANG; LANGUAGE is the GNU fallback list.
var localeEnvVars = []string{"LC_ALL", "LC_MESSAGES", "LANG", "LANGUAGE"}

// detectSystemLanguage derives a language tag from the host locale
// environment. Values like "zh_CN.UTF-8" or "de_DE@euro" reduce to their
// language part; "C" and "POSIX" state no preference and are skipped.
// Returns English when nothing usable is set.
func detectSystemLanguage() language.Tag {
	for _, name := range localeEnvVars {
		val := os.Getenv(name)
		if val == "" {
			continue
		}

		// LANGUAGE may hold a colon-separated priority list.
		val, _, _ = strings.Cut(val, ":")
		val, _, _ = strings.Cut(val, ".")
		val, _, _ = strings.Cut(val, "@")
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}

		if tag, err := language.Parse(strings.ReplaceAll(val, "_", "-")); err == nil {
			return tag
		}
	}
	return language.English
}

// GetOutputLanguage resolves the language reviews are written in. An
// explicit output_language value wins; otherwise the host locale is
// consulted, falling back to English.
func (c *ReviewConfig) GetOutputLanguage() (*LanguageConfig, error) {
	if strings.TrimSpace(c.OutputLanguage) == "" {
		return &LanguageConfig{tag: detectSystemLanguage()}, nil
	}
	return ParseLanguage(c.OutputLanguage)
}

// ValidLanguageCodes lists the language codes accepted by configuration
// validation, lowercase.
func ValidLanguageCodes() []string {
	return []string{
		"en", "zh-cn", "zh-tw", "ja", "ko",
		"fr", "de", "es", "pt", "ru",
		"ar", "it", "nl", "pl", "tr",
		"vi", "th", "id",
	}
}
