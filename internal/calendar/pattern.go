package calendar

import (
	"fmt"
	"strings"
	"time"

	apperrors "mktsummary/internal/errors"
)

// ISODate is the layout used in remote archive URLs.
const ISODate = "2006-01-02"

type segment struct {
	layout  string // Go layout fragment; empty for literals
	literal string
}

// Pattern is a compiled date-format pattern using the letter grammar common
// to desktop tooling: yyyy, yy, MMMM, MMM, MM, M, dd, d, EEEE, EEE and
// quoted literals ('' for a single quote). Any other non-letter character is
// copied verbatim.
type Pattern struct {
	source   string
	segments []segment
}

// Compile parses pattern into a reusable formatter.
func Compile(pattern string) (*Pattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, apperrors.NewConfigError("date format pattern is empty", nil)
	}

	p := &Pattern{source: pattern}
	runes := []rune(pattern)
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.segments = append(p.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\'':
			// '' is an escaped quote, otherwise read until the closing quote
			if i+1 < len(runes) && runes[i+1] == '\'' {
				lit.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for ; j < len(runes); j++ {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						lit.WriteRune('\'')
						j++
						continue
					}
					break
				}
				lit.WriteRune(runes[j])
			}
			if j >= len(runes) {
				return nil, apperrors.NewConfigError(fmt.Sprintf("unterminated quote in date format %q", pattern), nil)
			}
			i = j + 1
		case isLetter(r):
			n := 1
			for i+n < len(runes) && runes[i+n] == r {
				n++
			}
			layout, err := tokenLayout(r, n)
			if err != nil {
				return nil, apperrors.NewConfigError(fmt.Sprintf("date format %q", pattern), err)
			}
			flush()
			p.segments = append(p.segments, segment{layout: layout})
			i += n
		default:
			lit.WriteRune(r)
			i++
		}
	}
	flush()

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) validate() error {
	for _, s := range p.segments {
		if strings.ContainsAny(s.literal, `/\`) {
			return apperrors.NewConfigError(fmt.Sprintf("date format %q contains a path separator", p.source), nil)
		}
	}
	sample := strings.TrimSpace(p.Format(time.Date(2023, time.December, 7, 0, 0, 0, 0, time.UTC)))
	if sample == "" || sample == "." || sample == ".." {
		return apperrors.NewConfigError(fmt.Sprintf("date format %q yields an empty file name", p.source), nil)
	}
	return nil
}

// Format renders t with the compiled pattern.
func (p *Pattern) Format(t time.Time) string {
	var b strings.Builder
	for _, s := range p.segments {
		if s.layout != "" {
			b.WriteString(t.Format(s.layout))
		} else {
			b.WriteString(s.literal)
		}
	}
	return b.String()
}

// String returns the source pattern.
func (p *Pattern) String() string {
	return p.source
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func tokenLayout(letter rune, count int) (string, error) {
	switch letter {
	case 'y':
		if count == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch {
		case count == 1:
			return "1", nil
		case count == 2:
			return "01", nil
		case count == 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		if count == 1 {
			return "2", nil
		}
		return "02", nil
	case 'E':
		if count <= 3 {
			return "Mon", nil
		}
		return "Monday", nil
	}
	return "", fmt.Errorf("unsupported pattern letter %q", string(letter))
}
