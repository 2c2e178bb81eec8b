package errkind

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Rule maps a case-insensitive substring of a failure message to a Kind.
type Rule struct {
	Kind    Kind
	Pattern string
}

// DefaultRules recognise the phrasing of Fabric peers, the chaincode and the
// Go network stack. Matching is best effort; rules are tried in order.
var DefaultRules = []Rule{
	{NotFound, "does not exist"},
	{Unauthorized, "access denied"},
	{Unauthorized, "permission denied"},
	{Unauthorized, "not authorized"},
	{Unauthorized, "unauthorized"},
	{Unauthorized, "endorsement_policy_failure"},
	{UpstreamUnavailable, "connection refused"},
	{UpstreamUnavailable, "no such host"},
	{UpstreamUnavailable, "deadline exceeded"},
	{UpstreamUnavailable, "unavailable"},
}

// Translator classifies raw ledger failures.
type Translator struct {
	rules []Rule
}

func NewTranslator(extra ...Rule) *Translator {
	t := &Translator{rules: append([]Rule(nil), DefaultRules...)}
	t.rules = append(t.rules, extra...)
	return t
}

// Add appends rules for kind. Later rules have lower priority.
func (t *Translator) Add(kind Kind, patterns ...string) {
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			t.rules = append(t.rules, Rule{Kind: kind, Pattern: p})
		}
	}
}

var defaultTranslator = NewTranslator()

// Translate classifies err with the default rule set.
func Translate(op string, err error) error {
	return defaultTranslator.Translate(op, err)
}

// Translate returns err as an *Error. Structured errors pass through.
// Otherwise the gRPC status code is consulted first, then the Fabric commit
// status, then the message patterns of the status and its ErrorDetails.
func (t *Translator) Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return err
	}

	msg := diagnostic(err)
	kind := t.classify(err, msg)
	return &Error{Kind: kind, Op: op, Message: msg, Cause: err}
}

func (t *Translator) classify(err error, msg string) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamUnavailable
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return UpstreamUnavailable
		case codes.NotFound:
			return NotFound
		case codes.PermissionDenied, codes.Unauthenticated:
			return Unauthorized
		}
	}

	var commitErr *client.CommitError
	if errors.As(err, &commitErr) {
		switch commitErr.Code {
		case peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE,
			peer.TxValidationCode_BAD_CREATOR_SIGNATURE:
			return Unauthorized
		}
	}

	lower := strings.ToLower(msg)
	for _, r := range t.rules {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Kind
		}
	}
	return Unknown
}

// diagnostic joins the error text with any endorsement details the gateway
// attached to the status.
func diagnostic(err error) string {
	msg := err.Error()
	st, ok := status.FromError(err)
	if !ok {
		return msg
	}
	var parts []string
	for _, d := range st.Details() {
		detail, ok := d.(*gateway.ErrorDetail)
		if !ok {
			continue
		}
		part := detail.GetMessage()
		if addr := detail.GetAddress(); addr != "" {
			part = addr + " (" + detail.GetMspId() + "): " + part
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + "; " + strings.Join(parts, "; ")
}
