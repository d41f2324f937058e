// Package extract turns decoded analysis documents into BankRecords.
//
// A document is either one object or an array of objects. Only the object
// stored under "Left" is kept; when several array elements carry one, the
// last one wins.
package extract

import (
	"encoding/json"
	"strconv"

	"github.com/minseodaa/bankdrop/internal/model"
)

// LeftKey is the document key holding the record to ingest.
const LeftKey = "Left"

var accountKeys = []string{"account_number", "accountNumber", "account"}

// Extract returns the BankRecord carried by raw, or false when raw has no
// "Left" section. Unexpected shapes are not errors.
func Extract(raw any) (model.BankRecord, bool) {
	var (
		left  map[string]any
		found bool
	)
	switch v := raw.(type) {
	case []any:
		for _, el := range v {
			if l, ok := leftOf(el); ok {
				left, found = l, true
			}
		}
	case map[string]any:
		left, found = leftOf(v)
	}
	if !found {
		return model.BankRecord{}, false
	}
	return toRecord(left), true
}

func leftOf(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	left, ok := obj[LeftKey].(map[string]any)
	return left, ok
}

func toRecord(left map[string]any) model.BankRecord {
	rec := model.BankRecord{
		Bank:   text(left["bank"]),
		Name:   text(left["name"]),
		Amount: ParseAmount(left["amount"]),
	}
	for _, k := range accountKeys {
		if v, ok := left[k]; ok && v != nil {
			rec.AccountNumber = text(v)
			break
		}
	}
	return rec
}

// text renders scalar values as their JSON text. Objects, arrays and null
// become the empty string.
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
