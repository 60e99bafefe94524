package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

const (
	summaryWidth = 70
	logWidth     = 80
	dateLayout   = "02/01/2006"
	fileLayout   = "20060102"
)

// SummaryName returns the file name of the summary for day.
func SummaryName(day time.Time) string {
	return "summary_" + day.Format(fileLayout) + ".txt"
}

// LogName returns the file name of the consolidated log for day.
func LogName(day time.Time) string {
	return "log_" + day.Format(fileLayout) + ".txt"
}

// RenderSummary renders the daily summary report.
func RenderSummary(t Tally, generated time.Time) []byte {
	var b bytes.Buffer
	rule := strings.Repeat("=", summaryWidth)
	dash := strings.Repeat("-", summaryWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "RESUMO DE MONITORAMENTO - %s\n", t.Day.Format(dateLayout))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "1. TOTAL DE MODIFICAÇÕES: %d\n", t.Total)
	fmt.Fprintln(&b, "   Número de alterações realizadas no diretório monitorado.")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "2. ARQUIVOS MODIFICADOS: %d\n", len(t.PerFile))
	fmt.Fprintln(&b, "   Quantidade de arquivos diferentes que sofreram alterações.")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "3. DETALHAMENTO POR ARQUIVO:")
	fmt.Fprintln(&b, dash)
	for _, name := range sortedKeys(t.PerFile) {
		fmt.Fprintf(&b, "   %-40s - %3d modificações\n", name, t.PerFile[name])
	}
	fmt.Fprintln(&b, dash)
	fmt.Fprintf(&b, "Gerado em: %s\n", generated.Format(types.TimestampLayout))

	return b.Bytes()
}

// RenderLog renders the consolidated log report.
func RenderLog(t Tally, generated time.Time) []byte {
	var b bytes.Buffer
	rule := strings.Repeat("=", logWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "LOG CONSOLIDADO - %s\n", t.Day.Format(dateLayout))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	for _, line := range t.Events {
		fmt.Fprintln(&b, line)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total de eventos registrados: %d\n", len(t.Events))
	fmt.Fprintf(&b, "Gerado em: %s\n", generated.Format(types.TimestampLayout))
	fmt.Fprintln(&b, rule)

	return b.Bytes()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
