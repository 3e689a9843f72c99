package report

// The session log is the only source of truth.
// Read it, never write it.
// A line we cannot parse is counted, not fatal.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the session artifact is absent or unreadable
var ErrNotFound = errors.New("session log not found")

// MaxLineSize bounds a single log line
const MaxLineSize = 1 << 20

// timestampPattern matches ISO-like timestamps anywhere in a line:
// 2026-10-17T09:30:05Z, 2026-10-17 09:30:05.123, 2026-10-17T09:30:05+02:00
var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`)

const (
	zonedLayout = "2006-01-02T15:04:05.999999999Z07:00"
	localLayout = "2006-01-02T15:04:05.999999999"
)

// Extract scans the artifact at path. The file is opened read-only.
func Extract(path string) (*MetricsReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	defer f.Close()

	r, err := ExtractReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	r.LogPath = path
	return r, nil
}

// ExtractReader runs one forward scan over rd
func ExtractReader(rd io.Reader) (*MetricsReport, error) {
	return Scan(rd, nil)
}

// Scan classifies every line, folds numeric payloads and tracks the
// first and last timestamp. onEvent, if set, sees each classified line.
func Scan(rd io.Reader, onEvent func(LogEvent)) (*MetricsReport, error) {
	r := newMetricsReport()
	samples := newMalformedRing(maxMalformedSamples)

	var first, last string
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		r.Lines++

		if ts := timestampPattern.FindAllString(line, -1); len(ts) > 0 {
			if first == "" {
				first = ts[0]
			}
			last = ts[len(ts)-1]
		}

		// Numeric payloads are folded for every numeric marker present,
		// regardless of which class wins the count.
		var payloads map[MarkerClass]decimal.Decimal
		for _, m := range Vocabulary {
			if !m.Numeric {
				continue
			}
			rest, ok := m.match(line)
			if !ok {
				continue
			}
			v, token, err := parsePayload(rest)
			if err != nil {
				r.Malformed[m.Class]++
				samples.Record(MalformedSample{LineNo: r.Lines, Class: m.Class, Token: token})
				continue
			}
			agg := r.Aggregates[m.Class]
			agg.Add(v)
			r.Aggregates[m.Class] = agg
			if payloads == nil {
				payloads = make(map[MarkerClass]decimal.Decimal, 1)
			}
			payloads[m.Class] = v
		}

		class, ok := Classify(line)
		if !ok {
			continue
		}
		r.Counts[class]++
		if onEvent != nil {
			ev := LogEvent{Class: class, Line: line}
			if v, ok := payloads[class]; ok {
				ev.Payload = &v
			}
			onEvent(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log: %w", err)
	}

	r.computeRates()
	r.MalformedSamples = samples.Recent()
	if len(r.Malformed) == 0 {
		r.Malformed = nil
	}
	r.setDuration(first, last)
	return r, nil
}

// parsePayload reads the first whitespace-delimited token of rest as a
// decimal, ignoring trailing ',' and ';'. A colon glued to the marker
// ("Balance too low: 0.0100 SOL") is skipped.
func parsePayload(rest string) (decimal.Decimal, string, error) {
	fields := strings.Fields(strings.TrimPrefix(rest, ":"))
	if len(fields) == 0 {
		return decimal.Zero, "", errors.New("missing numeric token")
	}
	token := strings.TrimRight(fields[0], ",;")
	v, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Zero, fields[0], fmt.Errorf("invalid numeric token %q: %w", fields[0], err)
	}
	return v, token, nil
}

// setDuration derives the session duration from the first and last
// timestamps. It stays unavailable if either one fails to parse.
func (r *MetricsReport) setDuration(first, last string) {
	if first == "" {
		return
	}
	start, err := parseTimestamp(first)
	if err != nil {
		return
	}
	end, err := parseTimestamp(last)
	if err != nil {
		return
	}
	d := end.Sub(start)
	r.FirstTimestamp = &start
	r.LastTimestamp = &end
	r.Duration = &d
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.Replace(s, " ", "T", 1)
	if strings.HasSuffix(s, "Z") || strings.LastIndexAny(s, "+-") > len("2006-01-02") {
		return time.Parse(zonedLayout, s)
	}
	return time.ParseInLocation(localLayout, s, time.Local)
}
