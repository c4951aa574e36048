package constants

import (
	"sort"
	"strings"
)

const (
	// LanguageAuto is stored as the language of jobs submitted with provider-side detection.
	LanguageAuto = "auto"
	// DefaultLanguage is used when a requested language is not supported.
	DefaultLanguage = "en"
)

// Languages is the provider's supported-language table (code -> display name).
var Languages = map[string]string{
	"en": "English", "es": "Spanish", "fr": "French", "de": "German", "it": "Italian",
	"pt": "Portuguese", "nl": "Dutch", "hi": "Hindi", "ja": "Japanese", "zh": "Chinese",
	"ko": "Korean", "te": "Telugu", "ta": "Tamil", "pl": "Polish", "id": "Indonesian",
	"tr": "Turkish", "ru": "Russian", "vi": "Vietnamese", "da": "Danish", "fil": "Filipino",
	"fi": "Finnish", "el": "Greek", "hu": "Hungarian", "ml": "Malayalam", "no": "Norwegian",
	"sv": "Swedish", "th": "Thai", "uk": "Ukrainian", "bn": "Bengali", "ro": "Romanian",
	"si": "Sinhala", "mr": "Marathi", "gu": "Gujarati", "kn": "Kannada", "ar": "Arabic",
	"fa": "Persian", "ur": "Urdu", "hr": "Croatian", "bg": "Bulgarian", "sr": "Serbian",
	"sk": "Slovak", "sl": "Slovenian", "ca": "Catalan", "he": "Hebrew", "lv": "Latvian",
	"lt": "Lithuanian", "ne": "Nepali", "et": "Estonian", "ms": "Malay", "tl": "Tagalog",
	"pa": "Punjabi", "sw": "Swahili", "az": "Azerbaijani", "hy": "Armenian", "bs": "Bosnian",
	"my": "Burmese", "af": "Afrikaans", "ka": "Georgian", "is": "Icelandic", "km": "Khmer",
	"lo": "Lao", "mk": "Macedonian", "mn": "Mongolian", "gl": "Galician", "kk": "Kazakh",
}

// regional variants that do not reduce to their prefix.
var languageSynonyms = map[string]string{
	"zh_tw": "zh",
	"zh-tw": "zh",
	"en_uk": "en",
	"en_us": "en",
	"en_au": "en",
}

// CanonicalLanguage normalizes a requested language code ("en_US" -> "en").
// The bool is false when the code is not supported; callers decide the fallback.
func CanonicalLanguage(input string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	base := normalized
	if i := strings.IndexAny(normalized, "_-"); i >= 0 {
		base = normalized[:i]
	}
	if _, ok := Languages[base]; ok {
		return base, true
	}
	if code, ok := languageSynonyms[normalized]; ok {
		return code, true
	}
	return "", false
}

// LanguageCodes returns the supported codes sorted.
func LanguageCodes() []string {
	out := make([]string, 0, len(Languages))
	for code := range Languages {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
