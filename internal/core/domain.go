package core

import (
	"errors"
	"fmt"
	"math"
)

type (
	// Transaction is one transfer record, optionally annotated with a compliance issue.
	// Records are values: queries read them and never change them.
	Transaction struct {
		MTN                 int64            `json:"mtn"` // Mobile transaction number, not unique
		Amount              float64          `json:"amount"`
		SenderFullName      Optional[string] `json:"senderFullName"`
		SenderAge           int              `json:"senderAge"`
		BeneficiaryFullName Optional[string] `json:"beneficiaryFullName"`
		BeneficiaryAge      int              `json:"beneficiaryAge"`
		IssueID             Optional[int64]  `json:"issueId"`
		IssueSolved         bool             `json:"issueSolved"`
		IssueMessage        Optional[string] `json:"issueMessage"`
	}

	// SenderTotal is the summed amount sent by one sender.
	SenderTotal struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidAge    = errors.New("invalid age")
)

// HasIssue reports whether a compliance issue is recorded.
func (t Transaction) HasIssue() bool {
	return t.IssueID.IsSome()
}

// HasOpenIssue reports whether a compliance issue is recorded and not yet solved.
func (t Transaction) HasOpenIssue() bool {
	return t.HasIssue() && !t.IssueSolved
}

// HasClient reports whether name is the sender or the beneficiary.
func (t Transaction) HasClient(name string) bool {
	return t.SenderFullName.Is(name) || t.BeneficiaryFullName.Is(name)
}

// Validate performs the structural checks a loader applies before handing records on.
func (t Transaction) Validate() error {
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	if t.SenderAge < 0 || t.BeneficiaryAge < 0 {
		return ErrInvalidAge
	}
	return nil
}

func (t Transaction) String() string {
	issue := "none"
	if id, ok := t.IssueID.Get(); ok {
		issue = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("MTN: %d, Amount: %.2f, Sender: %s, Beneficiary: %s, Issue ID: %s, Issue Solved: %t, Issue Message: %s",
		t.MTN, t.Amount,
		t.SenderFullName.OrElse("N/A"),
		t.BeneficiaryFullName.OrElse("N/A"),
		issue, t.IssueSolved,
		t.IssueMessage.OrElse("N/A"))
}
