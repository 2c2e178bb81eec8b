// Package titles is the transaction pipeline for land titles: it validates
// requests, stores documents before submitting, and classifies ledger
// failures.
package titles

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/ledger"
	"xdao.co/titlegate/logger"
)

// Chaincode transaction names.
const (
	TxCreate   = "CreateLandTitle"
	TxRead     = "ReadLandTitle"
	TxUpdate   = "UpdateLandTitle"
	TxTransfer = "TransferLandTitle"
	TxList     = "GetAllLandTitles"
)

// ContractSource hands out the shared contract handle. *ledger.Manager
// satisfies it.
type ContractSource interface {
	Contract(ctx context.Context) (ledger.Contract, error)
}

// DocumentStore is satisfied by *docstore.Client.
type DocumentStore interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, address string) ([]byte, error)
}

type ServiceOption func(*Service)

// WithTranslator replaces the default ledger error classification.
func WithTranslator(t *errkind.Translator) ServiceOption {
	return func(s *Service) { s.translator = t }
}

// WithIDGenerator replaces uuid.NewString for new title ids.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

type Service struct {
	contracts  ContractSource
	docs       DocumentStore
	log        *logger.Logger
	validate   *validator.Validate
	translator *errkind.Translator
	newID      func() string
}

func NewService(contracts ContractSource, docs DocumentStore, log *logger.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		contracts:  contracts,
		docs:       docs,
		log:        log.With("component", "titles"),
		validate:   newValidator(),
		translator: errkind.NewTranslator(),
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a new title. The document, if any, is stored and pinned
// before the ledger is contacted; an upload failure leaves the ledger
// untouched. The id is generated here.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	const op = "titles.Create"
	if err := s.check(op, req); err != nil {
		return Created{}, err
	}

	var address string
	if len(req.Document) > 0 {
		var err error
		if address, err = s.docs.Upload(ctx, req.Document); err != nil {
			return Created{}, err
		}
	}

	id := s.newID()
	out, err := s.submit(ctx, op, TxCreate,
		id, req.Owner, req.Description, formatValue(req.Value), req.Timestamp, address)
	if err != nil {
		if address != "" {
			// Safe to retry: the same bytes map to the same address.
			s.log.Warn("document stored but title not created", "cid", address, "error", err)
		}
		return Created{}, err
	}
	s.logWrite(ctx, "title created", "id", id, "cid", address)
	return Created{ID: id, DocumentAddress: address, Outcome: DecodePayload(out)}, nil
}

func (s *Service) Read(ctx context.Context, id string) (Record, error) {
	const op = "titles.Read"
	if err := checkID(op, id); err != nil {
		return Record{}, err
	}
	out, err := s.evaluate(ctx, op, TxRead, id)
	if err != nil {
		return Record{}, err
	}
	var r ledgerRecord
	if err := decodeStructured(op, out, &r); err != nil {
		return Record{}, err
	}
	return r.record(), nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (Payload, error) {
	const op = "titles.Update"
	if err := checkID(op, id); err != nil {
		return Payload{}, err
	}
	if err := s.check(op, req); err != nil {
		return Payload{}, err
	}
	out, err := s.submit(ctx, op, TxUpdate, id, req.NewOwner, formatValue(req.NewValue))
	if err != nil {
		return Payload{}, err
	}
	s.logWrite(ctx, "title updated", "id", id)
	return DecodePayload(out), nil
}

// Transfer moves a title to another owner and organization. The
// organization must look like Org<n>MSP; anything else is rejected before
// the ledger is contacted.
func (s *Service) Transfer(ctx context.Context, id string, req TransferRequest) (Payload, error) {
	const op = "titles.Transfer"
	if err := checkID(op, id); err != nil {
		return Payload{}, err
	}
	if err := s.check(op, req); err != nil {
		return Payload{}, err
	}
	out, err := s.submit(ctx, op, TxTransfer, id, req.NewOwner, req.NewOrg)
	if err != nil {
		return Payload{}, err
	}
	s.logWrite(ctx, "title transferred", "id", id, "newOrg", req.NewOrg)
	return DecodePayload(out), nil
}

// List returns every title on the ledger. An empty ledger yields an empty,
// non-nil slice.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	const op = "titles.List"
	out, err := s.evaluate(ctx, op, TxList)
	if err != nil {
		return nil, err
	}
	p := DecodePayload(out)
	if raw, ok := p.Structured(); p.Kind() == PayloadEmpty || (ok && string(raw) == "null") {
		return []Record{}, nil
	}
	var rows []ledgerRecord
	if err := decodeStructured(op, out, &rows); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// Document returns a title's stored document along with the title.
func (s *Service) Document(ctx context.Context, id string) ([]byte, Record, error) {
	const op = "titles.Document"
	rec, err := s.Read(ctx, id)
	if err != nil {
		return nil, Record{}, err
	}
	if rec.DocumentAddress == "" {
		return nil, rec, errkind.Newf(errkind.NotFound, op, "title %s has no document", id)
	}
	b, err := s.docs.Fetch(ctx, rec.DocumentAddress)
	if err != nil {
		return nil, rec, err
	}
	return b, rec, nil
}

func (s *Service) check(op string, req any) error {
	if err := s.validate.Struct(req); err != nil {
		return errkind.New(errkind.ValidationFailed, op, describe(err))
	}
	return nil
}

func checkID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return errkind.New(errkind.ValidationFailed, op, "id is required")
	}
	return nil
}

func (s *Service) submit(ctx context.Context, op, tx string, args ...string) ([]byte, error) {
	contract, err := s.contracts.Contract(ctx)
	if err != nil {
		return nil, err
	}
	out, err := contract.Submit(ctx, tx, args...)
	if err != nil {
		err = s.translator.Translate(op, err)
		s.log.Error("submit failed", "transaction", tx, "kind", errkind.KindOf(err), "error", err)
		return nil, err
	}
	return out, nil
}

func (s *Service) evaluate(ctx context.Context, op, tx string, args ...string) ([]byte, error) {
	contract, err := s.contracts.Contract(ctx)
	if err != nil {
		return nil, err
	}
	out, err := contract.Evaluate(ctx, tx, args...)
	if err != nil {
		err = s.translator.Translate(op, err)
		s.log.Debug("evaluate failed", "transaction", tx, "kind", errkind.KindOf(err), "error", err)
		return nil, err
	}
	return out, nil
}

func (s *Service) logWrite(ctx context.Context, msg string, kv ...any) {
	if c, ok := CallerFrom(ctx); ok {
		kv = append(kv, "caller", c.Subject, "callerOrg", c.Org)
	}
	s.log.Info(msg, kv...)
}

func decodeStructured(op string, out []byte, v any) error {
	p := DecodePayload(out)
	if err := p.Decode(v); err != nil {
		return errkind.Newf(errkind.Unknown, op, "unexpected ledger response (%s): %v", p.Kind(), err)
	}
	return nil
}

// formatValue renders a value as the shortest exact decimal, e.g. 750000.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
