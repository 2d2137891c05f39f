package atlas

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LabelEntry maps one integer label value in an atlas volume to a region
// name, optionally with a parent region for hierarchical parcellations.
type LabelEntry struct {
	Label  int32
	Name   string
	Parent string
}

// CleanLabel normalizes region names that carry wildcard placeholders.
// An entry of exactly "*.*.*.*." denotes background; otherwise any "*."
// and ".*" fragments are stripped.
func CleanLabel(name string) string {
	if strings.TrimSpace(name) == "*.*.*.*." {
		return "Background"
	}
	cleaned := strings.ReplaceAll(name, "*.", "")
	cleaned = strings.ReplaceAll(cleaned, ".*", "")
	cleaned = strings.ReplaceAll(cleaned, "*", "")
	return strings.TrimSpace(cleaned)
}

// BrainstemTable returns the built-in label table for the combined
// brainstem tract atlas, label 0 marking voxels outside the atlas.
func BrainstemTable() []LabelEntry {
	names := []string{
		"Not_in_Atlas",
		"CSTL_Atlas", "CSTR_Atlas",
		"FPTL_Atlas", "FPTR_Atlas",
		"ICPMCL_Atlas", "ICPMCR_Atlas",
		"ICPVCL_Atlas", "ICPVCR_Atlas",
		"LLL_Atlas", "LLR_Atlas",
		"MCP_Atlas",
		"MLL_Atlas", "MLR_Atlas",
		"POTPTL_Atlas", "POTPTR_Atlas",
		"SCPCRL_Atlas", "SCPCRR_Atlas",
		"SCPCTL_Atlas", "SCPCTR_Atlas",
		"SCPSCL_Atlas", "SCPSCR_Atlas",
		"STTL_Atlas", "STTR_Atlas",
	}
	table := make([]LabelEntry, len(names))
	for i, n := range names {
		table[i] = LabelEntry{Label: int32(i), Name: n}
	}
	return table
}

// readCSV loads a CSV file with a header row and returns the header and
// the data rows.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening label table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing label table %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("label table %s has no data rows", path)
	}
	return rows[0], rows[1:], nil
}

// column finds a named column in a CSV header, case-insensitively.
func column(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("label table is missing column %q", name)
}

// LoadTalairachTable reads a Talairach-style label table with columns
// "Index" and "Description".
func LoadTalairachTable(path string) ([]LabelEntry, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idxCol, err := column(header, "Index")
	if err != nil {
		return nil, err
	}
	descCol, err := column(header, "Description")
	if err != nil {
		return nil, err
	}

	table := make([]LabelEntry, 0, len(rows))
	for _, row := range rows {
		label, err := strconv.Atoi(strings.TrimSpace(row[idxCol]))
		if err != nil {
			return nil, fmt.Errorf("label table %s: bad label %q: %w", path, row[idxCol], err)
		}
		table = append(table, LabelEntry{
			Label: int32(label),
			Name:  CleanLabel(row[descCol]),
		})
	}
	return table, nil
}

// LoadNeudorferTable reads a Neudorfer-style label table with columns
// "Label", "Hemisphere", "Abbreviation" and "Name". Region names compose
// all three descriptive columns, e.g. "Left_STN_Subthalamic_Nucleus".
func LoadNeudorferTable(path string) ([]LabelEntry, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	labelCol, err := column(header, "Label")
	if err != nil {
		return nil, err
	}
	hemiCol, err := column(header, "Hemisphere")
	if err != nil {
		return nil, err
	}
	abbrCol, err := column(header, "Abbreviation")
	if err != nil {
		return nil, err
	}
	nameCol, err := column(header, "Name")
	if err != nil {
		return nil, err
	}

	table := make([]LabelEntry, 0, len(rows))
	for _, row := range rows {
		label, err := strconv.Atoi(strings.TrimSpace(row[labelCol]))
		if err != nil {
			return nil, fmt.Errorf("label table %s: bad label %q: %w", path, row[labelCol], err)
		}
		name := fmt.Sprintf("%s_%s_%s",
			strings.TrimSpace(row[hemiCol]),
			strings.TrimSpace(row[abbrCol]),
			strings.ReplaceAll(strings.TrimSpace(row[nameCol]), " ", "_"))
		table = append(table, LabelEntry{Label: int32(label), Name: name})
	}
	return table, nil
}

// LoadTable dispatches on the table format name: "brainstem" uses the
// built-in table and needs no file, "talairach" and "neudorfer" read the
// CSV at path.
func LoadTable(format, path string) ([]LabelEntry, error) {
	switch strings.ToLower(format) {
	case "brainstem", "":
		return BrainstemTable(), nil
	case "talairach":
		return LoadTalairachTable(path)
	case "neudorfer":
		return LoadNeudorferTable(path)
	default:
		return nil, fmt.Errorf("unknown atlas label format %q", format)
	}
}
