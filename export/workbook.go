/*
Package export builds the registry's spreadsheet workbook.

PURPOSE:
  Produces an XLSX with two sheets:

    Detalle  - one row per (worker, company): hours over the selected
               range, rate, and the amount as a LIVE =hours*rate formula
    Resumen  - one row per company, aggregating hours and amounts with
               SUMIFS formulas over the detail sheet

  Amounts are formulas, not pre-computed values, so the recipient can
  audit and recalculate the file instead of receiving a frozen snapshot.

  Hour values are resolved through registry.Resolve, the same path the
  UI totals use, so the export never disagrees with the screen.
*/
package export

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/hours-engine/registry"
)

const (
	detailSheet  = "Detalle"
	summarySheet = "Resumen"
)

// Input is everything the workbook needs.
type Input struct {
	Assignments []registry.Assignment
	Context     *registry.ResolutionContext
	Days        []registry.DayDescriptor

	// Rates maps canonical company id to the hourly rate. Missing
	// companies default to zero (the formula still computes).
	Rates map[string]decimal.Decimal
}

// BuildWorkbook assembles the workbook in memory.
func BuildWorkbook(in Input) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := writeDetail(f, in); err != nil {
		return nil, err
	}
	if err := writeSummary(f, in); err != nil {
		return nil, err
	}

	// The default sheet excelize creates is replaced by Detalle.
	index, err := f.GetSheetIndex(detailSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	return f, nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func writeDetail(f *excelize.File, in Input) error {
	defaultName := f.GetSheetName(0)
	if err := f.SetSheetName(defaultName, detailSheet); err != nil {
		return err
	}

	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	headers := []string{"Trabajador", "Empresa", "Horas", "Tarifa", "Importe"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(detailSheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(detailSheet, cell, cell, style); err != nil {
			return err
		}
	}

	rows := detailRows(in)
	for i, r := range rows {
		rowNum := i + 2
		hours, _ := r.hours.Float64()
		rate, _ := r.rate.Float64()
		if err := f.SetCellValue(detailSheet, fmt.Sprintf("A%d", rowNum), r.worker); err != nil {
			return err
		}
		if err := f.SetCellValue(detailSheet, fmt.Sprintf("B%d", rowNum), r.company); err != nil {
			return err
		}
		if err := f.SetCellValue(detailSheet, fmt.Sprintf("C%d", rowNum), hours); err != nil {
			return err
		}
		if err := f.SetCellValue(detailSheet, fmt.Sprintf("D%d", rowNum), rate); err != nil {
			return err
		}
		// Live formula: auditable, recalculates if hours or rate change.
		if err := f.SetCellFormula(detailSheet, fmt.Sprintf("E%d", rowNum), fmt.Sprintf("=C%d*D%d", rowNum, rowNum)); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, in Input) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	headers := []string{"Empresa", "Horas", "Importe"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(summarySheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, cell, cell, style); err != nil {
			return err
		}
	}

	lastDetail := len(detailRows(in)) + 1
	companies := companyNames(in.Assignments)
	for i, name := range companies {
		rowNum := i + 2
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowNum), name); err != nil {
			return err
		}
		hoursFormula := fmt.Sprintf("=SUMIFS(%s!C2:C%d,%s!B2:B%d,A%d)", detailSheet, lastDetail, detailSheet, lastDetail, rowNum)
		if err := f.SetCellFormula(summarySheet, fmt.Sprintf("B%d", rowNum), hoursFormula); err != nil {
			return err
		}
		amountFormula := fmt.Sprintf("=SUMIFS(%s!E2:E%d,%s!B2:B%d,A%d)", detailSheet, lastDetail, detailSheet, lastDetail, rowNum)
		if err := f.SetCellFormula(summarySheet, fmt.Sprintf("C%d", rowNum), amountFormula); err != nil {
			return err
		}
	}
	return nil
}

type detailRow struct {
	worker  string
	company string
	hours   decimal.Decimal
	rate    decimal.Decimal
}

// detailRows resolves one row per assignment over the selected range,
// ordered by worker then company for a stable file.
func detailRows(in Input) []detailRow {
	rows := make([]detailRow, 0, len(in.Assignments))
	for _, a := range in.Assignments {
		company := registry.BuildCompanyIdentity(a.CompanyID, a.CompanyName)
		rows = append(rows, detailRow{
			worker:  a.WorkerName,
			company: company.Name,
			hours:   registry.RowTotal(a, in.Context, in.Days),
			rate:    in.Rates[company.ID],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].worker != rows[j].worker {
			return rows[i].worker < rows[j].worker
		}
		return rows[i].company < rows[j].company
	})
	return rows
}

// companyNames returns the distinct canonical company names, sorted.
func companyNames(assignments []registry.Assignment) []string {
	idx := registry.BuildIndexes(assignments)
	names := make([]string, 0, len(idx.CompanyLabels))
	for _, name := range idx.CompanyLabels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
