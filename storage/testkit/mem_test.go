package testkit

import (
	"testing"

	"xdao.co/titlegate/storage"
)

func TestMemCAS_Conformance(t *testing.T) {
	RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		return NewMemCAS()
	})
}
