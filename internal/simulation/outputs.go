package simulation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mvsim/internal/config"
	"mvsim/internal/serialize"
	"mvsim/internal/solver"

	"github.com/rs/zerolog/log"
)

// Output file names inside the output directory.
const (
	ResultsFile    = "json_with_results.json"
	FlowsFile      = "flows.csv"
	CostMatrixFile = "cost_matrix.csv"
	LPFile         = "lp_file.lp"
)

// WriteOutputs writes the result document and the optional reports of a
// finished run into cfg.Dir and returns the written paths.
func WriteOutputs(out *Outcome, cfg config.OutputConfig) ([]string, error) {
	if out == nil || out.Document == nil {
		return nil, errors.New("no result document to write")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	var written []string

	raw, err := serialize.Marshal(out.Document)
	if err != nil {
		return nil, fmt.Errorf("encode result document: %w", err)
	}
	p := filepath.Join(cfg.Dir, ResultsFile)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		return nil, err
	}
	written = append(written, p)

	if cfg.FlowsCSV {
		p := filepath.Join(cfg.Dir, FlowsFile)
		if err := WriteFlowsCSV(p, BuildLedger(out.System, out.Flows)); err != nil {
			return written, fmt.Errorf("write flows: %w", err)
		}
		written = append(written, p)
	}
	if cfg.CostMatrixCSV && out.KPIs != nil {
		p := filepath.Join(cfg.Dir, CostMatrixFile)
		if err := WriteCostMatrixCSV(p, out.KPIs.CostMatrix); err != nil {
			return written, fmt.Errorf("write cost matrix: %w", err)
		}
		written = append(written, p)
	}
	if out.System != nil && out.System.Settings.OutputLPFile && out.Model != nil {
		p := filepath.Join(cfg.Dir, LPFile)
		if err := writeLP(p, out); err != nil {
			return written, fmt.Errorf("write lp file: %w", err)
		}
		written = append(written, p)
	}
	log.Info().Str("dir", cfg.Dir).Int("files", len(written)).Msg("outputs written")
	return written, nil
}

func writeLP(path string, out *Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := solver.WriteLP(f, out.Model); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
