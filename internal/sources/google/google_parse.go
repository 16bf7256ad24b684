package google

import (
	"fmt"
	"strconv"
	"strings"

	"txnstats/internal/core"
)

const (
	colMTN             = "mtn"
	colAmount          = "amount"
	colSenderName      = "senderFullName"
	colSenderAge       = "senderAge"
	colBeneficiaryName = "beneficiaryFullName"
	colBeneficiaryAge  = "beneficiaryAge"
	colIssueID         = "issueId"
	colIssueSolved     = "issueSolved"
	colIssueMessage    = "issueMessage"
)

var requiredColumns = []string{colMTN, colAmount}

// rowError describes a data row that could not be converted.
type rowError struct {
	Row int
	Err error
}

func (e rowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e rowError) Unwrap() error { return e.Err }

// parseTransactionRows converts a values matrix into transactions. Columns are
// located by header name, case-insensitively; only mtn and amount are required.
// Row numbers in the returned errors are 1-based sheet rows.
func parseTransactionRows(values [][]any) ([]core.Transaction, []rowError, error) {
	if len(values) == 0 {
		return []core.Transaction{}, nil, nil
	}

	headers := toStrings(values[0])
	cols := map[string]int{}
	for _, name := range []string{colMTN, colAmount, colSenderName, colSenderAge, colBeneficiaryName,
		colBeneficiaryAge, colIssueID, colIssueSolved, colIssueMessage} {
		cols[name] = indexOf(headers, name)
	}
	var missing []string
	for _, name := range requiredColumns {
		if cols[name] == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	out := make([]core.Transaction, 0, len(values)-1)
	var skipped []rowError
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		t, err := parseRow(row, cols)
		if err != nil {
			skipped = append(skipped, rowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, t)
	}
	return out, skipped, nil
}

func parseRow(row []string, cols map[string]int) (core.Transaction, error) {
	var t core.Transaction

	mtn, err := strconv.ParseInt(cell(row, cols[colMTN]), 10, 64)
	if err != nil {
		return t, fmt.Errorf("mtn: %w", err)
	}
	t.MTN = mtn

	amount, ok := parseAmount(cell(row, cols[colAmount]))
	if !ok {
		return t, fmt.Errorf("amount %q is not a number", cell(row, cols[colAmount]))
	}
	t.Amount = amount

	t.SenderFullName = optionalString(cell(row, cols[colSenderName]))
	t.BeneficiaryFullName = optionalString(cell(row, cols[colBeneficiaryName]))
	t.IssueMessage = optionalString(cell(row, cols[colIssueMessage]))

	if t.SenderAge, err = parseAge(cell(row, cols[colSenderAge])); err != nil {
		return t, fmt.Errorf("senderAge: %w", err)
	}
	if t.BeneficiaryAge, err = parseAge(cell(row, cols[colBeneficiaryAge])); err != nil {
		return t, fmt.Errorf("beneficiaryAge: %w", err)
	}

	if v := cell(row, cols[colIssueID]); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return t, fmt.Errorf("issueId: %w", err)
		}
		t.IssueID = core.Some(id)
	}

	if v := cell(row, cols[colIssueSolved]); v != "" {
		solved, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return t, fmt.Errorf("issueSolved: %w", err)
		}
		t.IssueSolved = solved
	}

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// toStrings renders cells as text. Unformatted numeric cells arrive as float64
// and are printed without an exponent so large MTNs stay parseable.
func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func optionalString(v string) core.Optional[string] {
	if v == "" {
		return core.None[string]()
	}
	return core.Some(v)
}

// parseAmount accepts a decimal comma as well as a decimal point.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseAge(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
