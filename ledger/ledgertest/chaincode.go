// Package ledgertest provides an in-memory land-title chaincode for tests.
//
// Chaincode answers the same transactions as the deployed contract and fails
// the way a Fabric peer does: with a gRPC status whose message carries the
// chaincode error text.
package ledgertest

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/titlegate/ledger"
)

// Title mirrors the chaincode's world-state record.
type Title struct {
	ID                  string  `json:"ID"`
	Owner               string  `json:"Owner"`
	PropertyDescription string  `json:"PropertyDescription"`
	PropertyValue       float64 `json:"PropertyValue"`
	DocumentHash        string  `json:"DocumentHash"`
	Timestamp           string  `json:"Timestamp"`
	Organization        string  `json:"Organization"`
}

// Call records one transaction invocation.
type Call struct {
	Mode string // "submit" or "evaluate"
	Name string
	Args []string
}

// Chaincode is both a ledger.Contract and a source of contracts.
type Chaincode struct {
	// MSPID is the organization of the simulated caller.
	MSPID string
	// ConnectErr, when set, is returned by Contract.
	ConnectErr error

	Connects  atomic.Int64
	Submits   atomic.Int64
	Evaluates atomic.Int64

	mu     sync.Mutex
	titles map[string]Title
	calls  []Call
}

var _ ledger.Contract = (*Chaincode)(nil)

func New() *Chaincode {
	return &Chaincode{MSPID: "Org1MSP", titles: map[string]Title{}}
}

// Contract hands out the chaincode itself, like ledger.Manager does with the
// cached handle.
func (c *Chaincode) Contract(ctx context.Context) (ledger.Contract, error) {
	c.Connects.Add(1)
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	return c, nil
}

func (c *Chaincode) Channel() string   { return "mychannel" }
func (c *Chaincode) Chaincode() string { return "landtitle" }

// Put seeds a record directly into world state.
func (c *Chaincode) Put(t Title) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[t.ID] = t
}

// Get returns a record straight from world state.
func (c *Chaincode) Get(id string) (Title, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.titles[id]
	return t, ok
}

// Calls returns a copy of every invocation so far.
func (c *Chaincode) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Chaincode) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	c.Submits.Add(1)
	return c.invoke(ctx, "submit", name, args)
}

func (c *Chaincode) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	c.Evaluates.Add(1)
	return c.invoke(ctx, "evaluate", name, args)
}

func (c *Chaincode) invoke(ctx context.Context, mode, name string, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Mode: mode, Name: name, Args: append([]string(nil), args...)})

	switch name {
	case "CreateLandTitle":
		if len(args) != 6 {
			return nil, chaincodeError("incorrect number of params. Expected 6, received %d", len(args))
		}
		if _, ok := c.titles[args[0]]; ok {
			return nil, chaincodeError("the land title %s already exists", args[0])
		}
		value, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return nil, chaincodeError("error converting parameter 3: %v", err)
		}
		c.titles[args[0]] = Title{
			ID: args[0], Owner: args[1], PropertyDescription: args[2], PropertyValue: value,
			Timestamp: args[4], DocumentHash: args[5], Organization: c.MSPID,
		}
		return nil, nil

	case "ReadLandTitle":
		t, err := c.lookup(args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(t)

	case "UpdateLandTitle":
		t, err := c.lookup(args)
		if err != nil {
			return nil, err
		}
		if err := c.checkCaller(t); err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, chaincodeError("error converting parameter 2: %v", err)
		}
		t.Owner, t.PropertyValue = args[1], value
		c.titles[t.ID] = t
		return nil, nil

	case "TransferLandTitle":
		t, err := c.lookup(args)
		if err != nil {
			return nil, err
		}
		if err := c.checkCaller(t); err != nil {
			return nil, err
		}
		t.Owner, t.Organization = args[1], args[2]
		c.titles[t.ID] = t
		return nil, nil

	case "GetAllLandTitles":
		if len(c.titles) == 0 {
			// contractapi serializes a nil slice as null.
			return []byte("null"), nil
		}
		ids := make([]string, 0, len(c.titles))
		for id := range c.titles {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]Title, 0, len(ids))
		for _, id := range ids {
			out = append(out, c.titles[id])
		}
		return json.Marshal(out)
	}
	return nil, chaincodeError("Function %s not found in contract SmartContract", name)
}

func (c *Chaincode) lookup(args []string) (Title, error) {
	if len(args) == 0 {
		return Title{}, chaincodeError("missing title id")
	}
	t, ok := c.titles[args[0]]
	if !ok {
		return Title{}, chaincodeError("the land title %s does not exist", args[0])
	}
	return t, nil
}

func (c *Chaincode) checkCaller(t Title) error {
	if t.Organization != c.MSPID {
		return chaincodeError("access denied: only %s may modify this title", t.Organization)
	}
	return nil
}

func chaincodeError(format string, args ...any) error {
	return status.Errorf(codes.Unknown, "chaincode response 500, "+format, args...)
}
