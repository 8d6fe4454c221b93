// Package records parses pipe-delimited market summary record files.
package records

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts/domain"
)

const (
	// Delimiter separates fields within a record line.
	Delimiter = "|"
	// MinFields is the shortest line accepted; shorter lines are dropped.
	MinFields = 9

	sourceDateLayout = "02Jan2006"
	// TableDateLayout is the dd-MMM-yy rendering used in output rows.
	TableDateLayout = "02-Jan-06"
)

// numericFields maps record offsets to their column names.
var numericFields = []struct {
	index int
	name  string
}{
	{4, "open"},
	{5, "high"},
	{6, "low"},
	{7, "close"},
	{8, "volume"},
}

// Stats summarizes one parse.
type Stats struct {
	Lines    int
	Accepted int
	Dropped  int
}

// Parser converts record files into MarketRecords.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: infrastructure.WithComponent(logger, "parser")}
}

// ParseFile parses the record file at path.
func (p *Parser) ParseFile(path string) ([]domain.MarketRecord, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, apperrors.NewParseError("open record file", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads newline-delimited records from r. Lines with fewer than
// MinFields fields are dropped silently. A malformed numeric field on an
// accepted line fails the whole parse.
func (p *Parser) Parse(r io.Reader) ([]domain.MarketRecord, Stats, error) {
	var (
		out   []domain.MarketRecord
		stats Stats
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimRight(scanner.Text(), "\r")

		rec, ok, err := parseLine(line)
		if err != nil {
			return nil, stats, apperrors.NewParseError(fmt.Sprintf("line %d", stats.Lines), err).
				WithContext("line", stats.Lines)
		}
		if !ok {
			stats.Dropped++
			continue
		}
		stats.Accepted++
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, apperrors.NewParseError("read record file", err)
	}

	p.logger.Debug("Record file parsed",
		slog.Int("lines", stats.Lines),
		slog.Int("accepted", stats.Accepted),
		slog.Int("dropped", stats.Dropped))

	return out, stats, nil
}

func parseLine(line string) (domain.MarketRecord, bool, error) {
	fields := strings.Split(line, Delimiter)
	// trailing empty fields do not count toward the minimum
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) < MinFields {
		return domain.MarketRecord{}, false, nil
	}

	rec := domain.MarketRecord{
		Date:   ConvertDate(fields[0]),
		Ticker: strings.TrimSpace(fields[1]),
	}

	values := make([]float64, len(numericFields))
	for i, nf := range numericFields {
		v, err := parseNumber(fields[nf.index])
		if err != nil {
			return domain.MarketRecord{}, false, fmt.Errorf("%s: %w", nf.name, err)
		}
		values[i] = v
	}
	rec.Open, rec.High, rec.Low, rec.Close, rec.Volume = values[0], values[1], values[2], values[3], values[4]

	if len(fields) > MinFields && strings.TrimSpace(fields[MinFields]) != "" {
		v, err := parseNumber(fields[MinFields])
		if err != nil {
			return domain.MarketRecord{}, false, fmt.Errorf("trailing field: %w", err)
		}
		rec.Trailing = v
		rec.HasTrailing = true
	}

	return rec, true, nil
}

var errNotDecimal = errors.New("not a finite decimal number")

// parseNumber accepts plain decimal text with an optional exponent. NaN,
// infinities and hex floats are rejected even though strconv takes them.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c == '.', c == '+', c == '-', c == 'e', c == 'E':
		default:
			return 0, fmt.Errorf("%q: %w", s, errNotDecimal)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, errNotDecimal)
	}
	return v, nil
}

// ConvertDate rewrites a DDMONYYYY token such as 07DEC2023 as 07-Dec-23.
// Tokens that do not parse are returned unchanged.
func ConvertDate(token string) string {
	t, err := time.Parse(sourceDateLayout, strings.TrimSpace(token))
	if err != nil {
		return token
	}
	return t.Format(TableDateLayout)
}
