package render

import (
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"
)

// DefaultLocale is used when neither the request nor the configuration
// names a supported locale.
const DefaultLocale = monday.LocaleEnUS

// supportedLocales is limited to locales whose month names fit the
// WinAnsi encoding of the core PDF fonts.
var supportedLocales = []monday.Locale{
	monday.LocaleEnUS, // first entry is the matcher default
	monday.LocaleEnGB,
	monday.LocaleDeDE,
	monday.LocaleFrFR,
	monday.LocaleEsES,
	monday.LocaleItIT,
	monday.LocaleNlNL,
	monday.LocalePtPT,
	monday.LocalePtBR,
	monday.LocaleSvSE,
}

var localeMatcher = newLocaleMatcher()

func newLocaleMatcher() language.Matcher {
	tags := make([]language.Tag, 0, len(supportedLocales))
	for _, l := range supportedLocales {
		tags = append(tags, language.Make(strings.ReplaceAll(string(l), "_", "-")))
	}
	return language.NewMatcher(tags)
}

// MatchLocale picks the best supported locale for an Accept-Language header.
// It returns fallback when the header is empty, malformed or matches nothing.
func MatchLocale(acceptLanguage string, fallback monday.Locale) monday.Locale {
	if strings.TrimSpace(acceptLanguage) == "" {
		return fallback
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}

	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return fallback
	}

	return supportedLocales[idx]
}

// ParseLocale accepts "de_DE" or "de-DE" style names.
func ParseLocale(s string) (monday.Locale, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "_")
	for _, l := range supportedLocales {
		if strings.EqualFold(string(l), s) {
			return l, true
		}
	}
	return "", false
}

// FormatDate formats t with the locale's long date layout, e.g.
// "March 4, 2025" or "4. März 2025".
func FormatDate(t time.Time, locale monday.Locale) string {
	layout, ok := monday.LongFormatsByLocale[locale]
	if !ok {
		locale = DefaultLocale
		layout = monday.LongFormatsByLocale[DefaultLocale]
	}
	return monday.Format(t, layout, locale)
}
