package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvsim/internal/model"
	"mvsim/internal/nested"
)

// Groups with a single record: header "parameter,unit,value".
var singleRecordGroups = []string{
	model.GroupProjectData,
	model.GroupSimulationSettings,
	model.GroupEconomicData,
	model.GroupConstraints,
}

// Groups with one column per entry: header "parameter,unit,<label>...".
var multiRecordGroups = []string{
	model.GroupBusses,
	model.GroupProduction,
	model.GroupConsumption,
	model.GroupConversion,
	model.GroupStorage,
	model.GroupProviders,
	model.GroupFixcost,
}

var requiredGroups = map[string]bool{
	model.GroupProjectData:        true,
	model.GroupSimulationSettings: true,
	model.GroupEconomicData:       true,
}

// StorageFileKey names the per-storage file that holds the sub-asset columns.
const StorageFileKey = "storage_filename"

// LoadCSVElements reads csv_elements/<group>.csv files into the canonical
// document shape. Missing optional groups become empty mappings.
func LoadCSVElements(dir string) (map[string]any, error) {
	doc := map[string]any{}
	for _, g := range singleRecordGroups {
		table, err := readElementFile(filepath.Join(dir, g+".csv"))
		if errors.Is(err, os.ErrNotExist) && !requiredGroups[g] {
			doc[g] = map[string]any{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g, err)
		}
		if len(table.columns) != 1 {
			return nil, fmt.Errorf("%s.csv: expected exactly one value column, got %d", g, len(table.columns))
		}
		doc[g] = table.record(0)
	}
	for _, g := range multiRecordGroups {
		table, err := readElementFile(filepath.Join(dir, g+".csv"))
		if errors.Is(err, os.ErrNotExist) {
			doc[g] = map[string]any{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g, err)
		}
		out := map[string]any{}
		for i, label := range table.columns {
			if _, dup := out[label]; dup {
				return nil, fmt.Errorf("%s.csv: duplicate column %q", g, label)
			}
			out[label] = table.record(i)
		}
		doc[g] = out
	}
	storages, _ := doc[model.GroupStorage].(map[string]any)
	for _, label := range nested.Keys(storages) {
		rec := storages[label].(map[string]any)
		name, _ := nested.Value(rec[StorageFileKey]).(string)
		if name == "" {
			return nil, fmt.Errorf("%s.csv: storage %q has no %s", model.GroupStorage, label, StorageFileKey)
		}
		if !strings.HasSuffix(name, ".csv") {
			name += ".csv"
		}
		table, err := readElementFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("storage %q: %w", label, err)
		}
		for i, sub := range table.columns {
			switch sub {
			case model.StorageInputPower, model.StorageOutputPower, model.StorageCapacity:
				rec[sub] = table.record(i)
			default:
				return nil, fmt.Errorf("%s: unknown storage column %q", name, sub)
			}
		}
	}
	return doc, nil
}

type elementTable struct {
	columns []string
	params  []string
	units   []string
	cells   [][]string // cells[row][column]
}

func (t *elementTable) record(col int) map[string]any {
	out := make(map[string]any, len(t.params))
	for r, p := range t.params {
		out[p] = nested.Leaf(Coerce(t.cells[r][col]), t.units[r])
	}
	return out
}

func readElementFile(path string) (*elementTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s must have a header row", filepath.Base(path))
	}

	header := records[0]
	if len(header) < 3 || strings.TrimSpace(header[1]) != "unit" {
		return nil, fmt.Errorf("%s header mismatch. Expected: [parameter unit <columns>...], Got: %v", filepath.Base(path), header)
	}
	t := &elementTable{}
	for _, h := range header[2:] {
		t.columns = append(t.columns, strings.TrimSpace(h))
	}
	seen := map[string]bool{}
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%s row %d: expected %d columns, got %d", filepath.Base(path), i+2, len(header), len(rec))
		}
		param := strings.TrimSpace(rec[0])
		if param == "" {
			return nil, fmt.Errorf("%s row %d: empty parameter name", filepath.Base(path), i+2)
		}
		if seen[param] {
			return nil, fmt.Errorf("%s row %d: duplicate parameter %q", filepath.Base(path), i+2, param)
		}
		seen[param] = true
		t.params = append(t.params, param)
		t.units = append(t.units, strings.TrimSpace(rec[1]))
		t.cells = append(t.cells, rec[2:])
	}
	return t, nil
}
