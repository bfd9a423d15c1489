package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Options is a bit set of optional search behaviours
type Options uint8

const (
	// OptionDateCreated attaches the publish date of each result
	OptionDateCreated Options = 1 << iota
	// OptionDateRange restricts results to a date range (English only)
	OptionDateRange
)

// Has reports whether every bit of o2 is set in o
func (o Options) Has(o2 Options) bool { return o&o2 == o2 }

// ParseOptions converts the numeric option list used by API callers ([1], [2], [1,2])
func ParseOptions(codes []int) (Options, error) {
	var o Options
	for _, c := range codes {
		switch c {
		case 1:
			o |= OptionDateCreated
		case 2:
			o |= OptionDateRange
		default:
			return 0, model.Validationf("unknown search option %d", c)
		}
	}
	return o, nil
}

// DateRange bounds search results by date
type DateRange struct {
	Start string
	End   string
}

func (d DateRange) String() string {
	return d.Start + " to " + d.End
}

// ParseDateRange parses "<start> to <end>". Both bounds must be YYYY-MM-DD
// and start must not be after end.
func ParseDateRange(s string) (DateRange, error) {
	parts := strings.Split(s, " to ")
	if len(parts) != 2 {
		return DateRange{}, model.Validationf("date range %q: want \"<start> to <end>\"", s)
	}

	start := strings.TrimSpace(parts[0])
	end := strings.TrimSpace(parts[1])
	st, err := time.Parse("2006-01-02", start)
	if err != nil {
		return DateRange{}, model.Validationf("date range start %q: %v", start, err)
	}
	et, err := time.Parse("2006-01-02", end)
	if err != nil {
		return DateRange{}, model.Validationf("date range end %q: %v", end, err)
	}
	if st.After(et) {
		return DateRange{}, model.Validationf("date range %q: start is after end", s)
	}
	return DateRange{Start: start, End: end}, nil
}

// BuildQuery returns the query text sent to the backend. A date range is
// expressed with after:/before: operators, for English queries only.
func BuildQuery(text string, lang model.Language, opts Options, dr *DateRange) string {
	text = strings.TrimSpace(text)
	if lang == model.English && opts.Has(OptionDateRange) && dr != nil {
		return fmt.Sprintf("%s after:%s before:%s", text, dr.Start, dr.End)
	}
	return text
}

// LanguageRestrict returns the backend language restriction for lang
func LanguageRestrict(lang model.Language) string {
	if lang == model.French {
		return "lang_fr"
	}
	return "lang_en"
}
