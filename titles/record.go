package titles

// Record is a land title as returned to callers. The ledger holds the only
// authoritative copy; nothing here is cached.
type Record struct {
	ID              string  `json:"id"`
	Owner           string  `json:"owner"`
	Description     string  `json:"description"`
	Value           float64 `json:"value"`
	DocumentAddress string  `json:"documentHash"`
	Timestamp       string  `json:"timestamp"`
	Organization    string  `json:"organization"`
}

// ledgerRecord is the chaincode's world-state encoding.
type ledgerRecord struct {
	ID                  string  `json:"ID"`
	Owner               string  `json:"Owner"`
	PropertyDescription string  `json:"PropertyDescription"`
	PropertyValue       float64 `json:"PropertyValue"`
	DocumentHash        string  `json:"DocumentHash"`
	Timestamp           string  `json:"Timestamp"`
	Organization        string  `json:"Organization"`
}

func (r ledgerRecord) record() Record {
	return Record{
		ID:              r.ID,
		Owner:           r.Owner,
		Description:     r.PropertyDescription,
		Value:           r.PropertyValue,
		DocumentAddress: r.DocumentHash,
		Timestamp:       r.Timestamp,
		Organization:    r.Organization,
	}
}

type CreateRequest struct {
	Owner       string  `json:"owner" validate:"required,min=3"`
	Description string  `json:"description" validate:"required,min=10"`
	Value       float64 `json:"value" validate:"gt=0"`
	// Document is optional; JSON carries it base64 encoded.
	Document  []byte `json:"document,omitempty"`
	Timestamp string `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// Created is the result of Create. DocumentAddress is empty when the request
// carried no document.
type Created struct {
	ID              string  `json:"id"`
	DocumentAddress string  `json:"cid"`
	Outcome         Payload `json:"outcome"`
}

type UpdateRequest struct {
	NewOwner string  `json:"newOwner" validate:"required,min=3"`
	NewValue float64 `json:"newValue" validate:"gt=0"`
}

type TransferRequest struct {
	NewOwner string `json:"newOwner" validate:"required,min=3"`
	NewOrg   string `json:"newOrg" validate:"required,mspid"`
}
