// Package importer implements CSV device ingestion (spec.md §6) and the
// status_command disruptive-pattern guard, grounded on the Python
// predecessor's device_import_service.py and main.py.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/icecake0141/nwrunner/pkg/models"
)

// requiredColumns mirrors device_import_service.py's required field set.
var requiredColumns = []string{"host", "device_type", "username", "password"}

// FailedRow is one CSV row that failed validation, 1-based from the header
// line + 1 (spec.md §6).
type FailedRow struct {
	RowNumber int
	Row       map[string]string
	Error     string
}

// ImportResult is the output of Import: the successfully parsed devices
// (validated separately, see Validate) and any rejected rows.
type ImportResult struct {
	Devices    []models.DeviceProfile
	FailedRows []FailedRow
}

// Import parses CSV text into DeviceProfiles. It does not validate
// connectivity; call Validate (or Revalidate) separately and decide whether
// to keep unreachable devices, matching the original's two-stage
// parse-then-validate pipeline.
func Import(csvContent string) (ImportResult, error) {
	reader := csv.NewReader(strings.NewReader(csvContent))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[strings.TrimSpace(h)] = i
	}

	var result ImportResult

	rowNumber := 1
	for {
		rowNumber++

		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A malformed row (wrong field count) still counts against
			// the row number sequence; report it and keep going.
			result.FailedRows = append(result.FailedRows, FailedRow{
				RowNumber: rowNumber,
				Error:     err.Error(),
			})
			continue
		}

		row := make(map[string]string, len(header))
		for name, idx := range colIndex {
			if idx < len(record) {
				row[name] = strings.TrimSpace(record[idx])
			}
		}

		profile, importErr := parseRow(row)
		if importErr != "" {
			result.FailedRows = append(result.FailedRows, FailedRow{
				RowNumber: rowNumber,
				Row:       row,
				Error:     importErr,
			})
			continue
		}

		result.Devices = append(result.Devices, profile)
	}

	return result, nil
}

func parseRow(row map[string]string) (models.DeviceProfile, string) {
	var missing []string
	for _, col := range requiredColumns {
		if row[col] == "" {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return models.DeviceProfile{}, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
	}

	port := 22
	if raw := row["port"]; raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return models.DeviceProfile{}, fmt.Sprintf("invalid port value: %s", raw)
		}
		port = p
	}

	var verifyCmds []string
	for _, cmd := range strings.Split(row["verify_cmds"], ";") {
		cmd = strings.TrimSpace(cmd)
		if cmd != "" {
			verifyCmds = append(verifyCmds, cmd)
		}
	}

	return models.DeviceProfile{
		DeviceTarget: models.DeviceTarget{Host: row["host"], Port: port},
		DeviceType:   row["device_type"],
		Username:     row["username"],
		Password:     row["password"],
		Name:         row["name"],
		VerifyCmds:   verifyCmds,
	}, ""
}
