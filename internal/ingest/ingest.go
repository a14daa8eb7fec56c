// Package ingest reads the day's ticker list: one symbol and opening price per line.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
)

var ErrMalformedLine = errors.New("malformed ticker line")

// Entry is one symbol with its opening price.
type Entry struct {
	Symbol       string
	OpeningPrice decimal.Decimal
	Line         int
}

// Parse reads "SYMBOL PRICE" or "SYMBOL,PRICE" lines. Blank lines and lines
// starting with '#' are skipped. Bad lines are reported together in the error
// while every good line is still returned.
func Parse(r io.Reader) ([]Entry, error) {
	return parseFrom(r, 0)
}

func parseFrom(r io.Reader, firstLine int) ([]Entry, error) {
	var (
		out  []Entry
		errs []error
	)
	sc := bufio.NewScanner(r)
	n := firstLine
	for sc.Scan() {
		n++
		e, ok, err := parseLine(sc.Text())
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		if ok {
			e.Line = n
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func parseLine(line string) (Entry, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false, nil
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) < 2 {
		return Entry{}, false, fmt.Errorf("%q: %w", line, ErrMalformedLine)
	}
	price, err := decimal.NewFromString(fields[1])
	if err != nil {
		return Entry{}, false, fmt.Errorf("%q: %w", line, ErrMalformedLine)
	}
	if !price.IsPositive() {
		return Entry{}, false, fmt.Errorf("%q: %w", line, contract.ErrInvalidOpeningPrice)
	}
	return Entry{Symbol: contract.NormalizeSymbol(fields[0]), OpeningPrice: price}, true, nil
}

// Position marks how much of a ticker file has been consumed.
type Position struct {
	Offset int64
	Lines  int
}

// LoadFile parses the ticker file at path and reports the position it read up to,
// so a Follower can pick up exactly where the load stopped.
func LoadFile(path string) ([]Entry, Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Position{}, err
	}
	entries, err := Parse(bytes.NewReader(data))
	return entries, Position{Offset: int64(len(data)), Lines: bytes.Count(data, []byte{'\n'})}, err
}

// Follower polls a ticker file for lines appended after the initial load and
// hands each new entry to a sink.
type Follower struct {
	Path     string
	Interval time.Duration
	Log      zerolog.Logger

	offset int64
	lines  int
}

// NewFollower follows path starting at from, usually the Position LoadFile returned.
func NewFollower(path string, from Position, interval time.Duration, log zerolog.Logger) *Follower {
	f := &Follower{
		Path:     path,
		Interval: interval,
		Log:      log,
		offset:   from.Offset,
		lines:    from.Lines,
	}
	if f.Interval <= 0 {
		f.Interval = 5 * time.Second
	}
	return f
}

// Run polls until ctx is canceled.
func (f *Follower) Run(ctx context.Context, sink func(context.Context, Entry) error) {
	t := time.NewTicker(f.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			entries, err := f.Poll()
			if err != nil {
				f.Log.Warn().Err(err).Str("path", f.Path).Msg("ticker file poll")
			}
			for _, e := range entries {
				if err := sink(ctx, e); err != nil {
					f.Log.Warn().Err(err).Str("symbol", e.Symbol).Msg("admit from ticker file")
				}
			}
		}
	}
}

// Poll reads whole lines appended since the previous poll.
func (f *Follower) Poll() ([]Entry, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < f.offset {
		// truncated or replaced: start over
		f.offset = 0
		f.lines = 0
	}
	if st.Size() == f.offset {
		return nil, nil
	}
	buf := make([]byte, st.Size()-f.offset)
	if _, err := file.ReadAt(buf, f.offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	end := strings.LastIndexByte(string(buf), '\n')
	if end < 0 {
		return nil, nil
	}
	chunk := buf[:end+1]
	f.offset += int64(len(chunk))
	entries, err := parseFrom(strings.NewReader(string(chunk)), f.lines)
	f.lines += strings.Count(string(chunk), "\n")
	return entries, err
}
