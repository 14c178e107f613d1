package utils

import (
	"fmt"
	"io"
	"sort"
	"time"

	"fleetwatch/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	fixesSheet = "GPS"
	infoSheet  = "Info"
)

// WriteFixesExcel writes fixes as an xlsx workbook: one row per fix plus an
// info sheet with per-device counts.
func WriteFixesExcel(w io.Writer, fixes []models.GPSFix) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(fixesSheet)
	if err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(fixesSheet, cell, header); err != nil {
			return err
		}
	}

	coordStyle := customNumberStyle(f, "0.000000")
	decimalStyle := builtinNumberStyle(f, 2)

	for rowIdx, fix := range fixes {
		row := rowIdx + 2
		values := []interface{}{
			fix.ID,
			fix.DeviceID,
			fix.Latitude,
			fix.Longitude,
			orBlank(fix.Altitude),
			orBlank(fix.Speed),
			speedKmhOrBlank(fix),
			intOrBlank(fix.Satellites),
			orBlank(fix.HDOP),
			orBlank(fix.Battery),
			deviceTime(fix),
			fix.CreatedAt.UTC().Format(exportTimeLayout),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(fixesSheet, cell, v); err != nil {
				return err
			}
		}

		_ = f.SetCellStyle(fixesSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), coordStyle)
		_ = f.SetCellStyle(fixesSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("G%d", row), decimalStyle)
		_ = f.SetCellStyle(fixesSheet, fmt.Sprintf("I%d", row), fmt.Sprintf("J%d", row), decimalStyle)
	}

	for i := 1; i <= len(exportHeaders); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		_ = f.SetColWidth(fixesSheet, colName, colName, 18)
	}

	if len(fixes) > 0 {
		// low battery in red
		lastRow := len(fixes) + 1
		lowBattery := []excelize.ConditionalFormatOptions{
			{
				Type:     "cell",
				Criteria: "<",
				Value:    "20",
				Format:   conditionalFill(f, "#FFCCCC"),
			},
		}
		if err := f.SetConditionalFormat(fixesSheet, fmt.Sprintf("J2:J%d", lastRow), lowBattery); err != nil {
			return err
		}
	}

	if len(fixes) > 1 {
		if err := addSpeedChart(f, len(fixes)); err != nil {
			return err
		}
	}

	if err := writeInfoSheet(f, fixes); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	return f.Write(w)
}

func builtinNumberStyle(f *excelize.File, numFmt int) int {
	style, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
	if err != nil {
		return 0
	}
	return style
}

func customNumberStyle(f *excelize.File, format string) int {
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return 0
	}
	return style
}

func conditionalFill(f *excelize.File, color string) *int {
	style, err := f.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{color},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil
	}
	return &style
}

func addSpeedChart(f *excelize.File, rows int) error {
	last := rows + 1
	chart := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       "Speed (km/h)",
				Categories: fmt.Sprintf("%s!$L$2:$L$%d", fixesSheet, last),
				Values:     fmt.Sprintf("%s!$G$2:$G$%d", fixesSheet, last),
			},
		},
		Title: []excelize.RichTextRun{
			{
				Text: "Speed",
			},
		},
		XAxis: excelize.ChartAxis{
			MajorGridLines: true,
		},
		YAxis: excelize.ChartAxis{
			MajorGridLines: true,
		},
		Dimension: excelize.ChartDimension{
			Width:  600,
			Height: 400,
		},
	}
	return f.AddChart(fixesSheet, "N2", chart)
}

func writeInfoSheet(f *excelize.File, fixes []models.GPSFix) error {
	if _, err := f.NewSheet(infoSheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Report Generated", time.Now().UTC().Format(exportTimeLayout)},
		{"Total Records", len(fixes)},
	}
	if len(fixes) > 0 {
		oldest, newest := fixes[0].CreatedAt, fixes[0].CreatedAt
		counts := make(map[string]int)
		for _, fix := range fixes {
			if fix.CreatedAt.Before(oldest) {
				oldest = fix.CreatedAt
			}
			if fix.CreatedAt.After(newest) {
				newest = fix.CreatedAt
			}
			counts[fix.DeviceID]++
		}
		rows = append(rows, []interface{}{"Time Range", fmt.Sprintf("%s to %s",
			oldest.UTC().Format(exportTimeLayout), newest.UTC().Format(exportTimeLayout))})

		devices := make([]string, 0, len(counts))
		for id := range counts {
			devices = append(devices, id)
		}
		sort.Strings(devices)
		rows = append(rows, []interface{}{}, []interface{}{"Device", "Records"})
		for _, id := range devices {
			rows = append(rows, []interface{}{id, counts[id]})
		}
	}

	for i, row := range rows {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue(infoSheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
