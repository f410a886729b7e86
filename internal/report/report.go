// Package report exports cross-validation results as CSV tables and Excel workbooks.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"traffic-platform/internal/models"
)

const dateLayout = "2006-01-02"

// File names written by WriteCSV
const (
	PredictionsFile = "predictions.csv"
	MetricsFile     = "metrics.csv"
)

// Sheet names written by WriteXLSX
const (
	PredictionsSheet = "predictions"
	MetricsSheet     = "metrics"
)

// PredictionsFrame flattens the forecast records of every result into one table.
// A record without an observed value has NaN as actual.
func PredictionsFrame(results []*models.CrossValidationResult) dataframe.DataFrame {
	var (
		stationIDs, cutoffs, targets []string
		horizons                     []int
		actuals, predicted           []float64
	)

	for _, result := range results {
		for _, rec := range result.Records {
			stationIDs = append(stationIDs, rec.StationID)
			horizons = append(horizons, result.Horizon)
			cutoffs = append(cutoffs, rec.CutoffDate.Format(dateLayout))
			targets = append(targets, rec.TargetDate.Format(dateLayout))
			actual := math.NaN()
			if rec.Actual != nil {
				actual = *rec.Actual
			}
			actuals = append(actuals, actual)
			predicted = append(predicted, rec.Predicted)
		}
	}

	return dataframe.New(
		series.New(stationIDs, series.String, "station_id"),
		series.New(horizons, series.Int, "horizon"),
		series.New(cutoffs, series.String, "cutoff_date"),
		series.New(targets, series.String, "target_date"),
		series.New(actuals, series.Float, "actual"),
		series.New(predicted, series.Float, "predicted"),
	)
}

// MetricsFrame lists RMSE and MAPE per station and cutoff
func MetricsFrame(results []*models.CrossValidationResult) dataframe.DataFrame {
	var (
		stationIDs, cutoffs []string
		horizons            []int
		rmse, mape          []float64
	)

	for _, result := range results {
		for _, m := range result.Metrics {
			stationIDs = append(stationIDs, result.StationID)
			horizons = append(horizons, result.Horizon)
			cutoffs = append(cutoffs, m.Cutoff.Format(dateLayout))
			rmse = append(rmse, m.RMSE)
			mape = append(mape, m.MAPE)
		}
	}

	return dataframe.New(
		series.New(stationIDs, series.String, "station_id"),
		series.New(horizons, series.Int, "horizon"),
		series.New(cutoffs, series.String, "cutoff_date"),
		series.New(rmse, series.Float, "rmse"),
		series.New(mape, series.Float, "mape"),
	)
}

func checkResults(results []*models.CrossValidationResult) error {
	if len(results) == 0 {
		return &models.ValidationError{Field: "results", Message: "nothing to report"}
	}
	return nil
}

// WriteCSV writes predictions.csv and metrics.csv into dir and returns their paths
func WriteCSV(dir string, results []*models.CrossValidationResult) (string, string, error) {
	if err := checkResults(results); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create report directory: %w", err)
	}

	predictionsPath := filepath.Join(dir, PredictionsFile)
	if err := writeFrame(predictionsPath, PredictionsFrame(results)); err != nil {
		return "", "", err
	}

	metricsPath := filepath.Join(dir, MetricsFile)
	if err := writeFrame(metricsPath, MetricsFrame(results)); err != nil {
		return "", "", err
	}

	return predictionsPath, metricsPath, nil
}

func writeFrame(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("failed to build %s: %w", filepath.Base(path), df.Err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := df.WriteCSV(file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

// WriteXLSX writes a workbook with a predictions sheet and a metrics sheet
func WriteXLSX(path string, results []*models.CrossValidationResult) error {
	if err := checkResults(results); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PredictionsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(MetricsSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	if err := fillSheet(f, PredictionsSheet, PredictionsFrame(results)); err != nil {
		return err
	}
	if err := fillSheet(f, MetricsSheet, MetricsFrame(results)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// fillSheet writes the column names on row 1 and the values below; NaN cells stay empty
func fillSheet(f *excelize.File, sheet string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("failed to build sheet %s: %w", sheet, df.Err)
	}

	names := df.Names()
	for i, name := range names {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		for colIdx, name := range names {
			val := df.Col(name).Val(rowIdx)
			if val == nil {
				continue
			}
			if v, ok := val.(float64); ok && math.IsNaN(v) {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}
