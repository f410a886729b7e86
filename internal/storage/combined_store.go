// Package storage persists the combined hourly series as a flat CSV table.
//
// The file holds every station's history keyed by timestamp, with the station
// id as a column. A ".gz" or ".zst" suffix selects compression.
package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"traffic-platform/internal/models"
)

// Header is the column layout of the combined series file
var Header = []string{"timestamp", "station_id", "passenger_count", "freight_count", "total_count"}

// WriteCombined writes the series to path. Data goes to a temporary file in the
// same directory which is renamed into place only after a successful write, so a
// failed write never leaves a partial table behind.
func WriteCombined(path string, observations []models.Observation) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w, err := compressWriter(tmp, path)
	if err != nil {
		return err
	}

	if err := writeRows(w, observations); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move combined series into place: %w", err)
	}

	return nil
}

func writeRows(w io.Writer, observations []models.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(Header))
	for _, obs := range observations {
		row[0] = obs.Timestamp.Format(models.TimestampLayout)
		row[1] = obs.StationID
		row[2] = strconv.Itoa(obs.PassengerCount)
		row[3] = strconv.Itoa(obs.FreightCount)
		row[4] = strconv.Itoa(obs.TotalCount)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush rows: %w", err)
	}
	return nil
}

// ReadCombined reads a combined series file written by WriteCombined
func ReadCombined(path string) ([]models.Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open combined series: %w", err)
	}
	defer file.Close()

	r, err := decompressReader(file, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return readRows(r)
}

func readRows(r io.Reader) ([]models.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, &models.ValidationError{
			Field:   "header",
			Value:   strings.Join(header, ","),
			Message: "unexpected combined series header",
		}
	}

	var observations []models.Observation
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		obs, err := parseRow(row)
		if err != nil {
			return nil, &models.ParseError{Line: line, Text: strings.Join(row, ","), Reason: err.Error()}
		}
		observations = append(observations, obs)
	}

	return observations, nil
}

func parseRow(row []string) (models.Observation, error) {
	ts, err := time.Parse(models.TimestampLayout, row[0])
	if err != nil {
		return models.Observation{}, fmt.Errorf("invalid timestamp")
	}

	counts := make([]int, 3)
	for i := range counts {
		n, err := strconv.Atoi(row[i+2])
		if err != nil {
			return models.Observation{}, fmt.Errorf("invalid count in column %s", Header[i+2])
		}
		counts[i] = n
	}

	return models.Observation{
		StationID:      row[1],
		Timestamp:      ts,
		PassengerCount: counts[0],
		FreightCount:   counts[1],
		TotalCount:     counts[2],
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, path string) (io.WriteCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return gzip.NewWriter(w), nil
	case ".zst":
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

func decompressReader(r io.Reader, path string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, nil
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// FileSource serves the combined series from a file on disk
type FileSource struct {
	path string
}

// NewFileSource creates a source reading the combined series at path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file backing the source
func (s *FileSource) Path() string {
	return s.path
}

// LoadObservations reads the whole combined series
func (s *FileSource) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadCombined(s.path)
}
