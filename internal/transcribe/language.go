package transcribe

import "strings"

// verbose_json reports the detected language by name; callers and the
// preference store work with ISO-639-1 codes.
var languageCodes = map[string]string{
	"english":    "en",
	"russian":    "ru",
	"ukrainian":  "uk",
	"belarusian": "be",
	"kazakh":     "kk",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"polish":     "pl",
	"turkish":    "tr",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"arabic":     "ar",
	"hebrew":     "he",
	"dutch":      "nl",
}

// normalizeLanguage maps an API language label to a lower-case code.
// Two-letter values pass through; unrecognized names are returned lower-cased.
func normalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, ok := languageCodes[s]; ok {
		return code
	}
	return s
}
