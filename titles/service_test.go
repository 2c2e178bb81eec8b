package titles

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"xdao.co/titlegate/docstore"
	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/ledger/ledgertest"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/testkit"
)

type fixture struct {
	cc  *ledgertest.Chaincode
	cas *testkit.MemCAS
	svc *Service
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	cc := ledgertest.New()
	cas := testkit.NewMemCAS()
	docs := docstore.New(func(context.Context) (storage.CAS, func() error, error) {
		return cas, nil, nil
	}, nil, nil, docstore.Options{})
	return &fixture{cc: cc, cas: cas, svc: NewService(cc, docs, nil, opts...)}
}

func validCreate() CreateRequest {
	return CreateRequest{
		Owner:       "Alice",
		Description: "Beachfront villa 2500sqft",
		Value:       750000,
		Timestamp:   "2024-03-15T12:00:00Z",
	}
}

func TestCreateThenReadByGeneratedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := validCreate()
	req.Document = []byte("scanned deed: lot 12, block 4, v1.00") // 36 bytes
	if len(req.Document) != 36 {
		t.Fatalf("fixture document is %d bytes", len(req.Document))
	}

	created, err := f.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.DocumentAddress == "" {
		t.Fatalf("expected a document address")
	}
	if created.ID == "" {
		t.Fatalf("expected the generated id to be returned")
	}
	if created.Outcome.Kind() != PayloadEmpty {
		t.Fatalf("expected empty outcome, got %s", created.Outcome.Kind())
	}

	rec, err := f.svc.Read(ctx, created.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Owner != "Alice" || rec.Value != 750000 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.DocumentAddress != created.DocumentAddress || rec.Organization != "Org1MSP" {
		t.Fatalf("unexpected record %+v", rec)
	}

	calls := f.cc.Calls()
	args := calls[0].Args
	if calls[0].Name != TxCreate || len(args) != 6 {
		t.Fatalf("unexpected create call %+v", calls[0])
	}
	if args[0] != created.ID || args[3] != "750000" || args[4] != req.Timestamp || args[5] != created.DocumentAddress {
		t.Fatalf("unexpected create args %q", args)
	}

	doc, _, err := f.svc.Document(ctx, created.ID)
	if err != nil || !bytes.Equal(doc, req.Document) {
		t.Fatalf("Document: %v", err)
	}
}

func TestCreateWithoutDocumentSkipsStore(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.DocumentAddress != "" {
		t.Fatalf("expected empty address, got %q", created.DocumentAddress)
	}
	if f.cas.Puts.Load() != 0 || f.cas.Pins.Load() != 0 {
		t.Fatalf("store must not be called, puts=%d pins=%d", f.cas.Puts.Load(), f.cas.Pins.Load())
	}
	if got := f.cc.Calls()[0].Args[5]; got != "" {
		t.Fatalf("expected empty address argument, got %q", got)
	}
	if _, _, err := f.svc.Document(context.Background(), created.ID); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound for a title without document, got %v", err)
	}
}

func TestCreateUploadFailureNeverSubmits(t *testing.T) {
	f := newFixture(t)
	f.cas.PutErr = errors.New("ipfs: disk full")

	req := validCreate()
	req.Document = []byte("deed")
	_, err := f.svc.Create(context.Background(), req)
	if !errkind.Is(err, errkind.StoreWriteFailed) {
		t.Fatalf("expected StoreWriteFailed, got %v", err)
	}
	if f.cc.Submits.Load() != 0 || f.cc.Connects.Load() != 0 {
		t.Fatalf("ledger must not be contacted, submits=%d", f.cc.Submits.Load())
	}
}

func TestCreateIDIsGenerated(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "LT-0001" }))
	created, err := f.svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "LT-0001" {
		t.Fatalf("got id %q", created.ID)
	}
	if _, ok := f.cc.Get("LT-0001"); !ok {
		t.Fatalf("record not on ledger")
	}
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]func(*CreateRequest){
		"short owner":       func(r *CreateRequest) { r.Owner = "Al" },
		"short description": func(r *CreateRequest) { r.Description = "villa" },
		"zero value":        func(r *CreateRequest) { r.Value = 0 },
		"negative value":    func(r *CreateRequest) { r.Value = -1 },
		"bad timestamp":     func(r *CreateRequest) { r.Timestamp = "15/03/2024" },
		"missing timestamp": func(r *CreateRequest) { r.Timestamp = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := validCreate()
			req.Document = []byte("deed")
			mutate(&req)
			_, err := f.svc.Create(context.Background(), req)
			if !errkind.Is(err, errkind.ValidationFailed) {
				t.Fatalf("expected ValidationFailed, got %v", err)
			}
			if f.cas.Puts.Load() != 0 || f.cc.Connects.Load() != 0 {
				t.Fatalf("validation must precede any network call")
			}
		})
	}
}

func TestValidationMessageNamesField(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Owner = "Al"
	_, err := f.svc.Create(context.Background(), req)
	if got := errkind.MessageOf(err); got != "owner must be at least 3 characters" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestTransferOrgShape(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "LT-1" }))
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, validCreate()); err != nil {
		t.Fatal(err)
	}
	before := f.cc.Connects.Load()

	for _, bad := range []string{"org1", "OrgAMSP", ""} {
		_, err := f.svc.Transfer(ctx, "LT-1", TransferRequest{NewOwner: "Bob", NewOrg: bad})
		if !errkind.Is(err, errkind.ValidationFailed) {
			t.Fatalf("%q: expected ValidationFailed, got %v", bad, err)
		}
	}
	if f.cc.Connects.Load() != before {
		t.Fatalf("rejected transfers must not reach the ledger")
	}

	if _, err := f.svc.Transfer(ctx, "LT-1", TransferRequest{NewOwner: "Bob", NewOrg: "Org1MSP"}); err != nil {
		t.Fatalf("Org1MSP should pass: %v", err)
	}
	got, _ := f.cc.Get("LT-1")
	if got.Owner != "Bob" || got.Organization != "Org1MSP" {
		t.Fatalf("transfer not applied: %+v", got)
	}
}

func TestUpdateUnknownIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), "no-such-title", UpdateRequest{NewOwner: "Carol", NewValue: 10})
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if f.cc.Submits.Load() != 1 {
		t.Fatalf("expected the submit to reach the ledger")
	}
}

func TestUpdateByOtherOrgIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.cc.Put(ledgertest.Title{ID: "LT-9", Owner: "Dan", PropertyValue: 1, Organization: "Org2MSP"})
	_, err := f.svc.Update(context.Background(), "LT-9", UpdateRequest{NewOwner: "Carol", NewValue: 10})
	if !errkind.Is(err, errkind.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestUpdateAppliesValue(t *testing.T) {
	f := newFixture(t)
	f.cc.Put(ledgertest.Title{ID: "LT-2", Owner: "Dan", PropertyValue: 1, Organization: "Org1MSP"})
	if _, err := f.svc.Update(context.Background(), "LT-2", UpdateRequest{NewOwner: "Erin", NewValue: 1250.5}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.cc.Get("LT-2")
	if got.Owner != "Erin" || got.PropertyValue != 1250.5 {
		t.Fatalf("update not applied: %+v", got)
	}
	if args := f.cc.Calls()[0].Args; args[2] != "1250.5" {
		t.Fatalf("value sent as %q", args[2])
	}
}

func TestListEmptyAndPopulated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	recs, err := f.svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", recs)
	}

	f.cc.Put(ledgertest.Title{ID: "a", Owner: "Ann", PropertyValue: 1})
	f.cc.Put(ledgertest.Title{ID: "b", Owner: "Ben", PropertyValue: 2})
	recs, err = f.svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || recs[0].Owner != "Ann" || recs[1].Value != 2 {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestConnectionErrorsPassThrough(t *testing.T) {
	f := newFixture(t)
	f.cc.ConnectErr = errkind.New(errkind.ConnectionFailed, "ledger.Connect", "peer unreachable")
	_, err := f.svc.Read(context.Background(), "x")
	if !errkind.Is(err, errkind.ConnectionFailed) {
		t.Fatalf("expected ConnectionFailed, got %v", err)
	}
	if errkind.KindOf(err).Public() != errkind.UpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable at the boundary")
	}
}

func TestReadRequiresID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Read(context.Background(), "  "); !errkind.Is(err, errkind.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestCustomTranslator(t *testing.T) {
	tr := errkind.NewTranslator()
	tr.Add(errkind.NotFound, "already exists")
	f := newFixture(t, WithTranslator(tr), WithIDGenerator(func() string { return "dup" }))
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, validCreate()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, validCreate()); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected the configured rule to apply, got %v", err)
	}
}
