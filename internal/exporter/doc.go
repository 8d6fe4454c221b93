// Package exporter writes parsed market records to their output table.
//
// Two writers share the Writer interface:
//
// TableWriter: an OOXML workbook (excelize) with one "Stock Data" sheet, the
// fixed header and numeric cells typed as numbers.
//
// CSVWriter: the same columns as UTF-8 CSV with a BOM for spreadsheet
// compatibility, selected when the output extension is .csv.
//
// Both persist atomically: rows go to a temporary file in the destination
// directory that is renamed over the final path once complete.
//
// Example usage:
//
//	w, err := exporter.ForExtension(".xlsx", logger)
//	if err != nil {
//		return err
//	}
//	err = w.Write(records, "/home/me/Downloads/2023-12-07.xlsx")
package exporter
