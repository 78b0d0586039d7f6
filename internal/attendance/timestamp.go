package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en_GB"
	"github.com/go-playground/locales/en_US"
)

type localeFormat struct {
	translator func() locales.Translator
	layouts    []string
}

var supportedLocales = map[string]localeFormat{
	"en_US": {
		translator: en_US.New,
		layouts:    []string{"1/2/06, 3:04 PM", "1/2/2006, 3:04 PM", "1/2/06 3:04 PM"},
	},
	"en_GB": {
		translator: en_GB.New,
		layouts:    []string{"02/01/2006, 15:04", "2/1/06, 15:04", "02/01/2006 15:04"},
	},
}

// Timestamper renders the attendance timestamp: the short date and short
// time of the configured locale, joined by ", " (e.g. "12/4/24, 3:15 PM").
type Timestamper struct {
	trans   locales.Translator
	layouts []string
	loc     *time.Location
}

// NewTimestamper returns a Timestamper for locale ("en_US" or "en_GB") in loc.
func NewTimestamper(locale string, loc *time.Location) (*Timestamper, error) {
	f, ok := supportedLocales[locale]
	if !ok {
		return nil, fmt.Errorf("unsupported locale %q", locale)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Timestamper{trans: f.translator(), layouts: f.layouts, loc: loc}, nil
}

// Format renders t in the timestamper's zone.
func (ts *Timestamper) Format(t time.Time) string {
	t = t.In(ts.loc)
	return ts.trans.FmtDateShort(t) + ", " + ts.trans.FmtTimeShort(t)
}

// Parse reads back a timestamp produced by Format. Minutes are the finest
// precision kept.
func (ts *Timestamper) Parse(s string) (time.Time, error) {
	norm := strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(strings.TrimSpace(s))
	norm = strings.ToUpper(norm)
	for _, layout := range ts.layouts {
		if t, err := time.ParseInLocation(layout, norm, ts.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised %s timestamp %q", ts.trans.Locale(), s)
}

// Locale returns the locale name.
func (ts *Timestamper) Locale() string {
	return ts.trans.Locale()
}
