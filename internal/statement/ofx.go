package statement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/normalize"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	ofxSeverityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	ofxTagFix      = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser reads OFX/QFX downloads.
type OFXParser struct {
	logger *slog.Logger
}

// NewOFXParser creates an OFX statement parser.
func NewOFXParser(logger *slog.Logger) *OFXParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &OFXParser{logger: logger}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *OFXParser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	content = ofxSeverityFix.ReplaceAllStringFunc(content, strings.ToUpper)

	// Opening tags at end of line missing their closing bracket.
	return ofxTagFix.ReplaceAllString(content, "$1>")
}

// Parse extracts bank and credit card transactions from an OFX response.
func (p *OFXParser) Parse(ctx context.Context, reader io.Reader) (*Result, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, AsParseError(fmt.Errorf("failed to read OFX file: %w", err))
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, NewNoReadableDataError(FormatOFX, nil)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, AsParseError(ctxErr)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, AsParseError(fmt.Errorf("failed to parse OFX file: %w", err))
	}

	var txns []model.Transaction
	meta := Metadata{BankName: string(resp.Signon.Org)}

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		meta.AccountNumber = string(stmt.BankAcctFrom.AcctID)
		meta.StatementPeriod = ofxPeriod(stmt.BankTranList)
		txns = append(txns, p.convertList(stmt.BankTranList)...)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		meta.AccountNumber = string(stmt.CCAcctFrom.AcctID)
		meta.StatementPeriod = ofxPeriod(stmt.BankTranList)
		txns = append(txns, p.convertList(stmt.BankTranList)...)
	}

	txns = SortAndDedupe(txns)
	if len(txns) == 0 {
		return nil, NewNoTransactionsError(FormatOFX)
	}

	p.logger.Info("Parsed OFX file",
		"transactions", len(txns),
		"bank_statements", len(resp.Bank),
		"cc_statements", len(resp.CreditCard))

	return &Result{Transactions: txns, Strategy: "ofx", Metadata: meta}, nil
}

func (p *OFXParser) convertList(list *ofxgo.TransactionList) []model.Transaction {
	txns := make([]model.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(2))
		if err != nil {
			p.logger.Warn("Skipping OFX transaction with bad amount", "fitid", ofxTx.FiTID, "error", err)
			continue
		}

		// OFX amounts are negative for money leaving the account.
		txn, ok := model.NewTransaction(ofxTx.DtPosted.Time, extractMerchantName(ofxTx), amount.Neg(), string(ofxTx.FiTID))
		if !ok || txn.Description == "" {
			continue
		}
		txns = append(txns, txn)
	}
	return txns
}

func ofxPeriod(list *ofxgo.TransactionList) string {
	if list.DtStart.IsZero() || list.DtEnd.IsZero() {
		return ""
	}
	return list.DtStart.Format("2006-01-02") + " to " + list.DtEnd.Format("2006-01-02")
}

var ofxPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// extractMerchantName prefers PAYEE, then NAME, then MEMO for generic names.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return normalize.CleanDescription(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	for _, prefix := range ofxPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " card dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return normalize.CleanDescription(name)
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "", "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
