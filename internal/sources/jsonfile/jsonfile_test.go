package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"txnstats/internal/core"
)

const sample = `[
  {
    "mtn": 663458,
    "amount": 430.2,
    "senderFullName": "Tom Shelby",
    "senderAge": 22,
    "beneficiaryFullName": "Alfie Solomons",
    "beneficiaryAge": 33,
    "issueId": 1,
    "issueSolved": false,
    "issueMessage": "Looks like money laundering"
  },
  {
    "mtn": 1284564,
    "amount": 150.2,
    "senderFullName": "Tom Shelby",
    "senderAge": 22,
    "beneficiaryFullName": "Arthur Shelby",
    "beneficiaryAge": 60,
    "issueId": null,
    "issueSolved": true,
    "issueMessage": null,
    "extra": "ignored"
  }
]`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestReader_ReadTransactions(t *testing.T) {
	r := New(writeFile(t, sample), nil)

	got, err := r.ReadTransactions(context.Background())
	if err != nil {
		t.Fatalf("ReadTransactions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first := got[0]
	if first.MTN != 663458 || first.Amount != 430.2 || !first.SenderFullName.Is("Tom Shelby") {
		t.Errorf("first record = %v", first)
	}
	if id, ok := first.IssueID.Get(); !ok || id != 1 || !first.HasOpenIssue() {
		t.Errorf("first record issue = %v", first.IssueID)
	}

	second := got[1]
	if second.HasIssue() || second.IssueMessage.IsSome() || !second.IssueSolved {
		t.Errorf("second record = %v", second)
	}
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			wantErr: os.ErrNotExist,
		},
		{
			name: "malformed json",
			path: func(t *testing.T) string { return writeFile(t, `[{"mtn": 1,`) },
		},
		{
			name:    "object instead of array",
			path:    func(t *testing.T) string { return writeFile(t, `{"mtn": 1}`) },
			wantErr: ErrNotArray,
		},
		{
			name:    "empty file",
			path:    func(t *testing.T) string { return writeFile(t, "  ") },
			wantErr: ErrNotArray,
		},
		{
			name: "negative age",
			path: func(t *testing.T) string {
				return writeFile(t, `[{"mtn": 1, "amount": 5}, {"mtn": 2, "amount": 5, "senderAge": -3}]`)
			},
			wantErr: core.ErrInvalidAge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.path(t), nil).ReadTransactions(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	got, err := Decode([]byte("[]"))
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("Decode([]) = %v, %v", got, err)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []core.Transaction{{
		MTN:            5,
		Amount:         12.5,
		SenderFullName: core.Some("Ada Shelby"),
		SenderAge:      30,
		BeneficiaryAge: 40,
		IssueID:        core.Some[int64](0),
		IssueSolved:    true,
		IssueMessage:   core.None[string](),
	}}
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("decoded %v, want %v", out, in)
	}
}
