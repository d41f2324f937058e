package model

// BankRecord is the normalized "Left" section of one analysis document.
type BankRecord struct {
	Bank          string
	AccountNumber string
	Name          string
	Amount        int64 // zero when the producer value could not be parsed
}

// StoredRecord is a BankRecord with the identity assigned by the store.
type StoredRecord struct {
	ID int64
	BankRecord
}
