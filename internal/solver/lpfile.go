package solver

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"mvsim/internal/assembly"
)

// WriteLP dumps the linear program of m in a CPLEX-like LP text form.
// Column names are sanitised so the file stays readable by LP tools.
func WriteLP(w io.Writer, m *assembly.Model) error {
	p, err := build(m)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	name := func(j int) string { return sanitize(p.names[j]) }

	fmt.Fprintln(bw, "\\ energy system model")
	fmt.Fprintln(bw, "Minimize")
	fmt.Fprint(bw, " obj:")
	wrote := false
	for j, c := range p.cost {
		if c != 0 {
			fmt.Fprintf(bw, " %s %s", signed(c), name(j))
			wrote = true
		}
	}
	if !wrote {
		fmt.Fprint(bw, " 0")
	}
	if p.objConst != 0 {
		fmt.Fprintf(bw, " %s", signed(p.objConst))
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Subject To")
	for _, r := range p.rows {
		fmt.Fprintf(bw, " %s:", sanitize(r.name))
		for i, col := range r.expr.cols {
			if r.expr.coef[i] != 0 {
				fmt.Fprintf(bw, " %s %s", signed(r.expr.coef[i]), name(col))
			}
		}
		op := "="
		if r.slack >= 0 {
			op = "<="
		}
		fmt.Fprintf(bw, " %s %g\n", op, r.rhs-r.expr.c)
	}
	fmt.Fprintln(bw, "Bounds")
	for j := range p.names {
		if !strings.HasPrefix(p.names[j], "slack:") {
			fmt.Fprintf(bw, " %s >= 0\n", name(j))
		}
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("- %g", -v)
	}
	return fmt.Sprintf("+ %g", v)
}

var lpReplacer = strings.NewReplacer(" ", "_", "-", "_", ">", "_", ":", "_", "@", "_")

func sanitize(s string) string {
	return lpReplacer.Replace(s)
}
