// Package stations loads the counting station metadata used to label series
// and to locate weather forecasts.
package stations

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"traffic-platform/internal/models"
)

var requiredColumns = []string{"station", "alias", "lat", "long"}

// Directory is an immutable lookup of stations by id
type Directory struct {
	byID    map[string]models.Station
	ordered []models.Station
}

// NewDirectory builds a directory from already loaded stations
func NewDirectory(list []models.Station) *Directory {
	d := &Directory{byID: make(map[string]models.Station, len(list))}
	for _, s := range list {
		d.byID[s.StationID] = s
	}
	for _, s := range d.byID {
		d.ordered = append(d.ordered, s)
	}
	sort.Slice(d.ordered, func(i, j int) bool {
		if d.ordered[i].Alias != d.ordered[j].Alias {
			return d.ordered[i].Alias < d.ordered[j].Alias
		}
		return d.ordered[i].StationID < d.ordered[j].StationID
	})
	return d
}

// Read parses a station,alias,lat,long table
func Read(r io.Reader) (*Directory, error) {
	df := dataframe.ReadCSV(r,
		dataframe.WithTypes(map[string]series.Type{
			"station": series.String,
			"alias":   series.String,
			"lat":     series.Float,
			"long":    series.Float,
		}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read station table: %w", df.Err)
	}

	names := make(map[string]bool)
	for _, n := range df.Names() {
		names[n] = true
	}
	for _, col := range requiredColumns {
		if !names[col] {
			return nil, &models.ValidationError{
				Field:   col,
				Value:   strings.Join(df.Names(), ","),
				Message: fmt.Sprintf("station table is missing column %q", col),
			}
		}
	}

	ids := df.Col("station").Records()
	aliases := df.Col("alias").Records()
	lats := df.Col("lat").Float()
	longs := df.Col("long").Float()

	list := make([]models.Station, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		id := strings.TrimSpace(ids[i])
		if id == "" {
			return nil, &models.ValidationError{
				Field:   "station",
				Message: fmt.Sprintf("row %d has an empty station id", i+2),
			}
		}
		list = append(list, models.Station{
			StationID: id,
			Alias:     strings.TrimSpace(aliases[i]),
			Latitude:  lats[i],
			Longitude: longs[i],
		})
	}

	return NewDirectory(list), nil
}

// Load reads the station table at path
func Load(path string) (*Directory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station table: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// List returns all stations ordered by alias
func (d *Directory) List() []models.Station {
	out := make([]models.Station, len(d.ordered))
	copy(out, d.ordered)
	return out
}

// Get returns the station with the given id
func (d *Directory) Get(id string) (models.Station, error) {
	s, ok := d.byID[id]
	if !ok {
		return models.Station{}, &models.NotFoundError{Resource: "station", ID: id}
	}
	return s, nil
}

// Label returns "Alias (id)" for display, or the bare id when the station
// is unknown or has no alias
func (d *Directory) Label(id string) string {
	if s, ok := d.byID[id]; ok && s.Alias != "" {
		return s.Alias + " (" + id + ")"
	}
	return id
}

// Len returns the number of stations
func (d *Directory) Len() int {
	return len(d.byID)
}
