// Package wrangling turns raw counter export files into the combined hourly series.
//
// Counter exports hold one 24-hour table per station and day, each introduced by an
// irregular "Zählstelle" header line. Extraction is a single pass over the lines with
// the active station/date threaded through the loop as explicit state.
package wrangling

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"traffic-platform/internal/models"
)

var (
	// headerPattern accepts Zählstelle, Zahlstelle, Zaehlstelle and the UTF-8-read-as-Latin-1 spelling
	headerPattern = regexp.MustCompile(`^Z(?:ä|ae|a|Ã¤)hlstelle`)

	// dataRowPattern matches hour buckets such as 7:00, 07:00 and 24:00:00
	dataRowPattern = regexp.MustCompile(`^\d{1,2}:00`)
)

const utf8BOM = "\ufeff"

type lineKind int

const (
	irrelevantLine lineKind = iota
	headerLine
	dataRowLine
)

// tableState is the active table context, set by header lines and read by data rows
type tableState struct {
	stationID string
	date      string
}

func (s tableState) active() bool {
	return s.date != ""
}

// splitLine strips quotes and splits a raw line into its comma separated fields
func splitLine(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	line = strings.ReplaceAll(line, `"`, "")
	return strings.Split(line, ",")
}

func classify(fields []string) lineKind {
	first := strings.TrimSpace(fields[0])
	switch {
	case headerPattern.MatchString(first):
		return headerLine
	case dataRowPattern.MatchString(first):
		return dataRowLine
	default:
		return irrelevantLine
	}
}

// step applies one raw line to the extraction state. It returns the next state and,
// for data rows, the record the line produced.
func step(state tableState, line string, lineNo int) (tableState, *models.CounterRecord, error) {
	fields := splitLine(line)

	switch classify(fields) {
	case headerLine:
		tokens := strings.Fields(fields[0])
		if len(tokens) < 2 {
			return state, nil, &models.ParseError{Line: lineNo, Text: line, Reason: "header without station id"}
		}

		date, err := headerDate(fields)
		if err != nil {
			return state, nil, &models.ParseError{Line: lineNo, Text: line, Reason: err.Error()}
		}

		return tableState{stationID: tokens[1], date: date}, nil, nil

	case dataRowLine:
		if !state.active() {
			return state, nil, &models.ParseError{Line: lineNo, Text: line, Reason: "data row before any header"}
		}
		if len(fields) < 4 {
			return state, nil, &models.ParseError{Line: lineNo, Text: line, Reason: "data row needs hour and three counts"}
		}

		counts := make([]int, 3)
		for i := range counts {
			n, err := parseCount(fields[i+1])
			if err != nil {
				return state, nil, &models.ParseError{Line: lineNo, Text: line, Reason: err.Error()}
			}
			counts[i] = n
		}

		return state, &models.CounterRecord{
			StationID:      state.stationID,
			Date:           state.date,
			HourBucket:     strings.TrimSpace(fields[0]),
			PassengerCount: counts[0],
			FreightCount:   counts[1],
			TotalCount:     counts[2],
			Line:           lineNo,
		}, nil
	}

	return state, nil, nil
}

// parseCount reads a non-negative vehicle count, dropping spaces and '.' thousands separators
func parseCount(field string) (int, error) {
	s := strings.ReplaceAll(stripSpaces(strings.TrimSpace(field)), ".", "")
	if s == "" {
		return 0, fmt.Errorf("missing vehicle count")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid vehicle count %q", field)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative vehicle count %q", field)
	}
	return n, nil
}

// decodeLine converts a Windows-1252 encoded line to UTF-8. Valid UTF-8 passes unchanged.
func decodeLine(line string) (string, error) {
	if utf8.ValidString(line) {
		return line, nil
	}
	return charmap.Windows1252.NewDecoder().String(line)
}

// Extract reads a counter export and returns its hourly records in file order.
// The first malformed header or data row aborts extraction with a *models.ParseError.
func Extract(r io.Reader) ([]models.CounterRecord, error) {
	var (
		records []models.CounterRecord
		state   tableState
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineNo++

		line, err := decodeLine(scanner.Text())
		if err != nil {
			return nil, &models.ParseError{Line: lineNo, Text: scanner.Text(), Reason: "undecodable line"}
		}
		if lineNo == 1 {
			line = strings.TrimPrefix(line, utf8BOM)
		}

		next, record, err := step(state, line, lineNo)
		if err != nil {
			return nil, err
		}
		state = next

		if record != nil {
			records = append(records, *record)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading counter export: %w", err)
	}

	return records, nil
}

// ExtractFile extracts the records of a counter export on disk.
// Parse errors carry the file path.
func ExtractFile(path string) ([]models.CounterRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := Extract(file)
	if err != nil {
		var perr *models.ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}

	return records, nil
}
