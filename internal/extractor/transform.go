package extractor

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// modelOutput is the decoded model response before validation.
type modelOutput struct {
	BankKey      string
	Confidence   float64
	PageCount    int
	Period       *domain.StatementPeriod
	Warnings     []string
	Transactions []domain.ExtractedTransaction
}

// transformModelOutput validates the decoded JSON object. Rows that cannot be
// read are skipped and reported as warnings; a malformed envelope is an error.
func transformModelOutput(raw map[string]interface{}, defaultCurrency string) (*modelOutput, error) {
	out := &modelOutput{}

	bank, err := getOptionalStringField(raw, "bank_key")
	if err != nil {
		return nil, fmt.Errorf("transformModelOutput: %w", err)
	}
	if bank != nil {
		out.BankKey = strings.ToLower(*bank)
	}

	confidence, err := getOptionalFloat64Field(raw, "confidence")
	if err != nil {
		return nil, fmt.Errorf("transformModelOutput: %w", err)
	}
	if confidence != nil {
		out.Confidence = clamp01(*confidence)
	}

	pages, err := getOptionalFloat64Field(raw, "page_count")
	if err != nil {
		return nil, fmt.Errorf("transformModelOutput: %w", err)
	}
	if pages != nil && *pages > 0 {
		out.PageCount = int(*pages)
	}

	if w, ok := raw["warnings"].([]interface{}); ok {
		for _, item := range w {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out.Warnings = append(out.Warnings, s)
			}
		}
	}

	if p, ok := raw["statement_period"].(map[string]interface{}); ok {
		period, err := transformPeriod(p)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("statement period ignored: %v", err))
		} else {
			out.Period = period
		}
	}

	txAny, ok := raw["transactions"]
	if !ok {
		return nil, fmt.Errorf("transformModelOutput: missing 'transactions' key in model output")
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, fmt.Errorf("transformModelOutput: 'transactions' is %T, want []interface{}", txAny)
	}

	out.Transactions = make([]domain.ExtractedTransaction, 0, len(txSlice))
	for i, item := range txSlice {
		tx, err := transformTransaction(item, defaultCurrency)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("transaction %d skipped: %v", i, err))
			continue
		}
		out.Transactions = append(out.Transactions, tx)
	}

	return out, nil
}

func transformTransaction(item interface{}, defaultCurrency string) (domain.ExtractedTransaction, error) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return domain.ExtractedTransaction{}, fmt.Errorf("element is %T, want map[string]interface{}", item)
	}

	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return domain.ExtractedTransaction{}, err
	}
	date, err := civil.ParseDate(dateStr)
	if err != nil {
		return domain.ExtractedTransaction{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}

	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return domain.ExtractedTransaction{}, err
	}
	amount, err := getFloat64Field(obj, "amount", true)
	if err != nil {
		return domain.ExtractedTransaction{}, err
	}

	currency := defaultCurrency
	if c, err := getOptionalStringField(obj, "currency"); err != nil {
		return domain.ExtractedTransaction{}, err
	} else if c != nil {
		currency = strings.ToUpper(*c)
	}

	txType := domain.TransactionTypeCredit
	if amount < 0 {
		txType = domain.TransactionTypeDebit
	}
	if t, err := getOptionalStringField(obj, "type"); err != nil {
		return domain.ExtractedTransaction{}, err
	} else if t != nil {
		switch domain.TransactionType(strings.ToLower(*t)) {
		case domain.TransactionTypeDebit:
			txType = domain.TransactionTypeDebit
		case domain.TransactionTypeCredit:
			txType = domain.TransactionTypeCredit
		}
	}

	return domain.ExtractedTransaction{
		TransactionDate: date,
		Description:     strings.TrimSpace(desc),
		Amount:          amount,
		Currency:        currency,
		Type:            txType,
	}, nil
}

func transformPeriod(obj map[string]interface{}) (*domain.StatementPeriod, error) {
	startStr, err := getStringField(obj, "start", true)
	if err != nil {
		return nil, err
	}
	endStr, err := getStringField(obj, "end", true)
	if err != nil {
		return nil, err
	}
	start, err := civil.ParseDate(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid start %q: %w", startStr, err)
	}
	end, err := civil.ParseDate(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid end %q: %w", endStr, err)
	}
	return &domain.StatementPeriod{Start: start, End: end}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getOptionalFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
