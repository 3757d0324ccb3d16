// Package lang wraps language detection and the supported-language table.
// Detection is delegated to lingua-go, the Go port of the detector the
// original service used; normalization and the blacklist are local policy.
package lang

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Und is the sentinel for "language could not be determined".
const Und = "und"

// Info describes one supported language for the list_languages endpoint.
type Info struct {
	Code639_3 string // ISO 639-3 code, e.g. "eng"
	Name      string // English name, e.g. "English"
	Autonym   string // native name, e.g. "English"
}

// blacklist mirrors the languages the detector supports poorly enough that
// the service declines to offer them to callers.
var blacklist = map[string]bool{
	"abk": true, "ava": true, "bak": true, "lim": true, "nya": true, "iii": true,
}

// table is deliberately small: it only needs to cover the languages lingua
// can detect among the ones commonly requested. Entries are added as new
// languages are onboarded; it is not meant to be an exhaustive 639-3 table.
var table = map[lingua.Language]Info{
	lingua.English:    {"eng", "English", "English"},
	lingua.Chinese:    {"cmn", "Chinese", "中文"},
	lingua.Japanese:   {"jpn", "Japanese", "日本語"},
	lingua.Korean:     {"kor", "Korean", "한국어"},
	lingua.French:     {"fra", "French", "Français"},
	lingua.German:     {"deu", "German", "Deutsch"},
	lingua.Spanish:    {"spa", "Spanish", "Español"},
	lingua.Portuguese: {"por", "Portuguese", "Português"},
	lingua.Italian:    {"ita", "Italian", "Italiano"},
	lingua.Russian:    {"rus", "Russian", "Русский"},
	lingua.Arabic:     {"ara", "Arabic", "العربية"},
	lingua.Vietnamese: {"vie", "Vietnamese", "Tiếng Việt"},
	lingua.Thai:       {"tha", "Thai", "ภาษาไทย"},
	lingua.Hindi:      {"hin", "Hindi", "हिन्दी"},
}

// Detector wraps a preloaded lingua detector instance. Construction is
// expensive (model loading); callers should build one at startup and share
// it across requests.
type Detector struct {
	inner lingua.LanguageDetector
}

// NewDetector builds a detector over every language this service knows how
// to name (i.e. every entry not on the blacklist).
func NewDetector() *Detector {
	langs := make([]lingua.Language, 0, len(table))
	for l := range table {
		langs = append(langs, l)
	}
	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		WithPreloadedLanguageModels().
		Build()
	return &Detector{inner: d}
}

// Detect returns the ISO 639-3 code of the most likely language of text, or
// Und if no confident detection is available.
func (d *Detector) Detect(text string) string {
	language, ok := d.inner.DetectLanguageOf(text)
	if !ok {
		return Und
	}
	info, known := table[language]
	if !known {
		return Und
	}
	return info.Code639_3
}

// List returns the supported languages, blacklisted codes removed, sorted
// by English name.
func List() []Info {
	out := make([]Info, 0, len(table))
	for _, info := range table {
		if blacklist[info.Code639_3] {
			continue
		}
		out = append(out, info)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Name > out[j].Name; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Supported reports whether code is a known, non-blacklisted language.
func Supported(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if blacklist[code] {
		return false
	}
	for _, info := range table {
		if info.Code639_3 == code {
			return true
		}
	}
	return false
}
