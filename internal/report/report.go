// Package report holds the ten observed values of a payment flow run and
// their flat text encoding.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// NumLines is the number of lines in an encoded report.
const NumLines = 10

const (
	// InputAmount is written in place of the miner's input value. It is the
	// regtest block subsidy, not a measured value.
	InputAmount = "50"

	// SentAmount is the fixed payment amount, as written to the report.
	SentAmount = "20"
)

// Report is the result of one run. Field order matches the encoded line order.
type Report struct {
	TxID             string
	MiningAddress    string
	InputAmount      string
	RecipientAddress string
	SentAmount       string
	ChangeAddress    string
	ChangeAmount     btcutil.Amount
	Fee              btcutil.Amount
	BlockHeight      int64
	BlockHash        string
}

// FormatAmount prints an amount as decimal BTC using the fewest digits that
// represent it exactly, e.g. 29.9999859.
func FormatAmount(amt btcutil.Amount) string {
	return strconv.FormatFloat(amt.ToBTC(), 'f', -1, 64)
}

// Lines returns the report fields in output order.
func (r *Report) Lines() []string {
	return []string{
		r.TxID,
		r.MiningAddress,
		r.InputAmount,
		r.RecipientAddress,
		r.SentAmount,
		r.ChangeAddress,
		FormatAmount(r.ChangeAmount),
		FormatAmount(r.Fee),
		strconv.FormatInt(r.BlockHeight, 10),
		r.BlockHash,
	}
}

// WriteTo writes the report, one field per line.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, line := range r.Lines() {
		c, err := fmt.Fprintln(w, line)
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteFile creates or truncates path and writes the report to it.
func (r *Report) WriteFile(path string) error {
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error writing report to %s: %w", path, err)
	}
	return nil
}

// Parse reads an encoded report. Amounts are parsed back from decimal BTC.
func Parse(rd io.Reader) (*Report, error) {
	var lines []string
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) != NumLines {
		return nil, fmt.Errorf("expected %d report lines, got %d", NumLines, len(lines))
	}

	parseAmount := func(s string) (btcutil.Amount, error) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return btcutil.NewAmount(f)
	}

	changeAmt, err := parseAmount(lines[6])
	if err != nil {
		return nil, fmt.Errorf("bad change amount %q: %w", lines[6], err)
	}
	fee, err := parseAmount(lines[7])
	if err != nil {
		return nil, fmt.Errorf("bad fee %q: %w", lines[7], err)
	}
	height, err := strconv.ParseInt(lines[8], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad block height %q: %w", lines[8], err)
	}

	return &Report{
		TxID:             lines[0],
		MiningAddress:    lines[1],
		InputAmount:      lines[2],
		RecipientAddress: lines[3],
		SentAmount:       lines[4],
		ChangeAddress:    lines[5],
		ChangeAmount:     changeAmt,
		Fee:              fee,
		BlockHeight:      height,
		BlockHash:        lines[9],
	}, nil
}

// ReadFile parses the report stored at path.
func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
