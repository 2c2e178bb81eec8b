package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/titlegate/cidutil"
)

func runCLI(t *testing.T, stdin []byte, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, bytes.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(t.TempDir(), "deed.txt")
	content := []byte("deed of sale, parcel 42")
	if err := os.WriteFile(doc, content, 0o600); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, nil, "put", "--backend", "localfs", "--opt", "dir="+dir, doc)
	if code != 0 {
		t.Fatalf("put: code %d stderr %s", code, errOut)
	}
	id := strings.TrimSpace(out)
	if id != cidutil.Address(content) {
		t.Fatalf("put printed %s, want %s", id, cidutil.Address(content))
	}

	code, out, errOut = runCLI(t, nil, "get", "--backend", "localfs", "--opt", "dir="+dir, "--cid", id)
	if code != 0 {
		t.Fatalf("get: code %d stderr %s", code, errOut)
	}
	if out != string(content) {
		t.Fatalf("get returned %q", out)
	}
}

func TestGetMissingExitsThree(t *testing.T) {
	dir := t.TempDir()
	id := cidutil.Address([]byte("never written"))
	code, _, _ := runCLI(t, nil, "get", "--backend", "localfs", "--opt", "dir="+dir, "--cid", id)
	if code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
}

func TestCIDFromStdin(t *testing.T) {
	data := []byte("survey plan")
	code, out, _ := runCLI(t, data, "cid")
	if code != 0 || strings.TrimSpace(out) != cidutil.Address(data) {
		t.Fatalf("cid: code %d out %q", code, out)
	}
}

func TestExportImport(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	doc := filepath.Join(t.TempDir(), "deed.txt")
	if err := os.WriteFile(doc, []byte("title deed LAND-1"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, out, _ := runCLI(t, nil, "put", "--backend", "localfs", "--opt", "dir="+src, doc)
	id := strings.TrimSpace(out)

	archive := filepath.Join(t.TempDir(), "titles.tar")
	code, _, errOut := runCLI(t, nil, "export", "--backend", "localfs", "--opt", "dir="+src,
		"--label", "LAND-1="+id, "--out", archive)
	if code != 0 {
		t.Fatalf("export: code %d stderr %s", code, errOut)
	}

	code, out, errOut = runCLI(t, nil, "import", "--backend", "localfs", "--opt", "dir="+dst, archive)
	if code != 0 {
		t.Fatalf("import: code %d stderr %s", code, errOut)
	}
	if !strings.Contains(out, "LAND-1\t"+id) {
		t.Fatalf("import output missing label: %q", out)
	}

	code, out, _ = runCLI(t, nil, "get", "--backend", "localfs", "--opt", "dir="+dst, "--cid", id)
	if code != 0 || out != "title deed LAND-1" {
		t.Fatalf("get after import: code %d out %q", code, out)
	}
}

func TestBadInvocations(t *testing.T) {
	cases := [][]string{
		{},
		{"frobnicate"},
		{"get", "--backend", "localfs"},
		{"put", "--opt", "novalue"},
		{"pin", "--backend", "localfs", "--opt", "dir=/tmp", "not-a-cid"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, nil, args...); code != 2 {
			t.Fatalf("%v: expected exit 2, got %d", args, code)
		}
	}
}

func TestListBackends(t *testing.T) {
	code, out, _ := runCLI(t, nil, "list-backends")
	if code != 0 {
		t.Fatalf("code %d", code)
	}
	for _, name := range []string{"grpc", "ipfs", "localfs"} {
		if !strings.Contains(out, name) {
			t.Fatalf("missing backend %s in %q", name, out)
		}
	}
}
