package google

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"fatura/internal/core"
)

type column int

const (
	colDate column = iota
	colPeriod
	colOwner
	colKind
	colAccount
	colAmount
	colCount
	colIndex
	colCategory
	colDescription
	numLedgerColumns
)

// headerAliases maps folded header text to its column. Older sheets used
// Spanish headers for some columns.
var headerAliases = map[string]column{
	"data":          colDate,
	"mes_ref":       colPeriod,
	"quem":          colOwner,
	"quien":         colOwner,
	"persona":       colOwner,
	"tipo":          colKind,
	"banco":         colAccount,
	"valor":         colAmount,
	"monto":         colAmount,
	"monto_total":   colAmount,
	"parcelas":      colCount,
	"parcela_atual": colIndex,
	"categoria":     colCategory,
	"descricao":     colDescription,
	"descrição":     colDescription,
	"descripcion":   colDescription,
	"descripción":   colDescription,
}

func foldHeader(v any) string {
	return cases.Fold().String(strings.TrimSpace(cellString(v)))
}

// ledgerLayout locates each column. ok is false when the first row is not a header.
func ledgerLayout(first []any) (idx [numLedgerColumns]int, ok bool) {
	for i := range idx {
		idx[i] = -1
	}
	matched := 0
	for i, cell := range first {
		col, known := headerAliases[foldHeader(cell)]
		if !known || idx[col] >= 0 {
			continue
		}
		idx[col] = i
		matched++
	}
	if matched == 0 {
		for i := range idx {
			idx[i] = i
		}
		return idx, false
	}
	return idx, true
}

// parseLedgerRows converts the raw ledger range into entries. Rows that carry
// neither a readable period nor a readable date are skipped and counted.
// Unreadable amounts become zero with AmountUnparsed set.
func parseLedgerRows(values [][]any) ([]core.LedgerEntry, int) {
	if len(values) == 0 {
		return []core.LedgerEntry{}, 0
	}
	idx, hasHeader := ledgerLayout(values[0])
	rows := values
	if hasHeader {
		rows = values[1:]
	}

	out := make([]core.LedgerEntry, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		get := func(c column) string { return cellString(cellAt(row, idx[c])) }

		date, dateErr := core.ParseDate(get(colDate))
		period, err := core.ParsePeriod(get(colPeriod))
		if err != nil {
			if dateErr != nil {
				skipped++
				continue
			}
			period = core.PeriodOf(date.Time)
		}

		amount, err := core.ParseAmountValue(cellAt(row, idx[colAmount]))
		unparsed := err != nil

		count := positiveInt(get(colCount), 1)
		index := positiveInt(get(colIndex), 1)

		owner := strings.TrimSpace(get(colOwner))
		if idx[colOwner] < 0 || owner == "" {
			owner = core.DefaultOwner
		}

		kind := core.KindFor(count)
		if k := strings.TrimSpace(get(colKind)); k != "" {
			kind = core.ParseKind(k)
		}

		out = append(out, core.LedgerEntry{
			PostedDate:       date,
			BillingPeriod:    period,
			Owner:            owner,
			Kind:             kind,
			Account:          strings.TrimSpace(get(colAccount)),
			Amount:           amount,
			InstallmentCount: count,
			InstallmentIndex: index,
			Category:         strings.TrimSpace(get(colCategory)),
			Description:      strings.TrimSpace(get(colDescription)),
			AmountUnparsed:   unparsed,
		})
	}
	return out, skipped
}

// parseBudgetRows reads Categoria/Limite pairs. The second count is of limits
// that could not be read and were kept as zero.
func parseBudgetRows(values [][]any) ([]core.BudgetLimit, int) {
	out := make([]core.BudgetLimit, 0, len(values))
	catCol, limitCol := 0, 1
	rows := values
	if len(values) > 0 {
		c, l := -1, -1
		for i, cell := range values[0] {
			switch foldHeader(cell) {
			case "categoria":
				c = i
			case "limite":
				l = i
			}
		}
		if c >= 0 || l >= 0 {
			rows = values[1:]
			if c >= 0 {
				catCol = c
			}
			if l >= 0 {
				limitCol = l
			}
		}
	}

	unparsed := 0
	for _, row := range rows {
		cat := strings.TrimSpace(cellString(cellAt(row, catCol)))
		if cat == "" {
			continue
		}
		limit, err := core.ParseAmountValue(cellAt(row, limitCol))
		if err != nil {
			unparsed++
		}
		out = append(out, core.BudgetLimit{Category: cat, Limit: limit})
	}
	return out, unparsed
}

// entryRow renders an entry in ledger column order.
func entryRow(e core.LedgerEntry) []any {
	return []any{
		e.PostedDate.String(),
		e.BillingPeriod.String(),
		e.Owner,
		string(e.Kind),
		e.Account,
		e.Amount.InexactFloat64(),
		e.InstallmentCount,
		e.InstallmentIndex,
		e.Category,
		e.Description,
	}
}

func cellAt(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func blankRow(row []any) bool {
	for _, v := range row {
		if strings.TrimSpace(cellString(v)) != "" {
			return false
		}
	}
	return true
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}
