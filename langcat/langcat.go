// Package langcat is the static catalog of languages a conversion may
// target. Codes follow the translation engine's expectations (ISO 639-1,
// with region suffixes where the engine distinguishes scripts).
package langcat

import (
	"fmt"
	"sort"

	"polydoc/models"
)

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supported = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "nl", Name: "Dutch"},
	{Code: "sv", Name: "Swedish"},
	{Code: "no", Name: "Norwegian"},
	{Code: "da", Name: "Danish"},
	{Code: "fi", Name: "Finnish"},
	{Code: "pl", Name: "Polish"},
	{Code: "cs", Name: "Czech"},
	{Code: "sk", Name: "Slovak"},
	{Code: "hu", Name: "Hungarian"},
	{Code: "ro", Name: "Romanian"},
	{Code: "bg", Name: "Bulgarian"},
	{Code: "hr", Name: "Croatian"},
	{Code: "sr", Name: "Serbian"},
	{Code: "sl", Name: "Slovenian"},
	{Code: "et", Name: "Estonian"},
	{Code: "lv", Name: "Latvian"},
	{Code: "lt", Name: "Lithuanian"},
	{Code: "ga", Name: "Irish"},
	{Code: "cy", Name: "Welsh"},
	{Code: "is", Name: "Icelandic"},
	{Code: "mt", Name: "Maltese"},
	{Code: "ru", Name: "Russian"},
	{Code: "uk", Name: "Ukrainian"},
	{Code: "tr", Name: "Turkish"},
	{Code: "ar", Name: "Arabic"},
	{Code: "he", Name: "Hebrew"},
	{Code: "fa", Name: "Persian"},
	{Code: "ur", Name: "Urdu"},
	{Code: "hi", Name: "Hindi"},
	{Code: "bn", Name: "Bengali"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "kn", Name: "Kannada"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "mr", Name: "Marathi"},
	{Code: "ne", Name: "Nepali"},
	{Code: "si", Name: "Sinhala"},
	{Code: "th", Name: "Thai"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "id", Name: "Indonesian"},
	{Code: "ms", Name: "Malay"},
	{Code: "tl", Name: "Filipino"},
	{Code: "km", Name: "Khmer"},
	{Code: "my", Name: "Myanmar"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh-CN", Name: "Chinese (Simplified)"},
	{Code: "zh-TW", Name: "Chinese (Traditional)"},
	{Code: "sw", Name: "Swahili"},
	{Code: "am", Name: "Amharic"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(supported))
	for _, l := range supported {
		m[l.Code] = l
	}
	return m
}()

// IsSupported reports whether code names a language conversions may target.
func IsSupported(code string) bool {
	_, ok := byCode[code]
	return ok
}

// Validate checks a requested target-language list: it must be non-empty
// and every code must be in the catalog. The error names the first
// offending code so API clients get an actionable message.
func Validate(codes []string) error {
	if len(codes) == 0 {
		return fmt.Errorf("%w: target languages must not be empty", models.ErrInvalidArgument)
	}
	for _, c := range codes {
		if !IsSupported(c) {
			return fmt.Errorf("%w: unsupported language %q", models.ErrInvalidArgument, c)
		}
	}
	return nil
}

// All returns the catalog sorted by display name, for the API's
// language-list endpoint.
func All() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
