package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/bundle"
	"xdao.co/titlegate/storage/casconfig"
	"xdao.co/titlegate/storage/casregistry"

	_ "xdao.co/titlegate/storage/grpccas"
	_ "xdao.co/titlegate/storage/ipfs"
	_ "xdao.co/titlegate/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(ctx, args[1:], out, errOut)
	case "get":
		return cmdGet(ctx, args[1:], out, errOut)
	case "pin":
		return cmdPin(ctx, args[1:], errOut)
	case "cid":
		return cmdCID(args[1:], in, out, errOut)
	case "export":
		return cmdExport(ctx, args[1:], out, errOut)
	case "import":
		return cmdImport(ctx, args[1:], in, out, errOut)
	case "list-backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cascli: inspect and seed the title document store")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put [--pin] <backend flags> <file>")
	fmt.Fprintln(w, "  cascli get <backend flags> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cascli pin <backend flags> <cid> [<cid> ...]")
	fmt.Fprintln(w, "  cascli cid [<file>]                      (stdin when no file)")
	fmt.Fprintln(w, "  cascli export <backend flags> [--label title=<cid> ...] [--out <file>] <cid> ...")
	fmt.Fprintln(w, "  cascli import <backend flags> [--pin] [--ignore-unknown] [<file>]")
	fmt.Fprintln(w, "  cascli list-backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Backend flags:")
	fmt.Fprintln(w, "  --backend <name> --opt key=value ...   one backend from the registry")
	fmt.Fprintln(w, "  --config <file>                        content_store YAML (write_policy, backends)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  cascli put --backend localfs --opt dir=/tmp/cas deed.pdf")
	fmt.Fprintln(w, "  cascli get --backend ipfs --opt api=http://127.0.0.1:5001 --cid <cid>")
	fmt.Fprintln(w, "  cascli put --backend grpc --opt target=127.0.0.1:7777 deed.pdf")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Documents are stored as raw blocks (CIDv1 raw + sha2-256).")
}

type backendFlags struct {
	backend string
	config  string
	opts    keyValues
}

func (b *backendFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&b.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&b.config, "config", "", "content_store YAML file (overrides --backend)")
	fs.Var(&b.opts, "opt", "Backend option key=value (repeatable)")
}

func (b *backendFlags) open() (storage.CAS, func() error, error) {
	if b.config != "" {
		cfg, err := casconfig.LoadFile(b.config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageCLI, "")
	}
	return casregistry.Open(b.backend, casregistry.UsageCLI, b.opts.Map())
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
		}
		for _, k := range sortedKeys(b.Options) {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", k, b.Options[k])
		}
	}
}

func cmdPut(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var bf backendFlags
	bf.add(fs)
	pin := fs.Bool("pin", true, "Pin after writing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli put [backend flags] <file>")
		return 2
	}

	cas, closeFn, err := bf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := cas.Put(ctx, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *pin {
		if err := cas.Pin(ctx, id); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var bf backendFlags
	bf.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli get [backend flags] --cid <cid> [--out <file>]")
		return 2
	}

	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}

	cas, closeFn, err := bf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := cas.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		if errors.Is(err, storage.ErrNotFound) {
			return 3
		}
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdPin(ctx context.Context, args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("pin", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var bf backendFlags
	bf.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: cascli pin [backend flags] <cid> [<cid> ...]")
		return 2
	}
	ids, err := parseCIDs(fs.Args())
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	cas, closeFn, err := bf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	for _, id := range ids {
		if err := cas.Pin(ctx, id); err != nil {
			fmt.Fprintf(errOut, "pin %s: %v\n", id, err)
			return 1
		}
	}
	return 0
}

// cmdCID prints the address a document would get without touching a store.
func cmdCID(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	var (
		b   []byte
		err error
	)
	switch len(args) {
	case 0:
		b, err = io.ReadAll(in)
	case 1:
		b, err = os.ReadFile(args[0])
	default:
		fmt.Fprintln(errOut, "usage: cascli cid [<file>]")
		return 2
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, cidutil.Address(b))
	return 0
}

func cmdExport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var bf backendFlags
	bf.add(fs)
	var labels keyValues
	fs.Var(&labels, "label", "Title id to CID label, title=<cid> (repeatable)")
	outPath := fs.String("out", "", "Output file (default stdout)")
	noIndex := fs.Bool("no-index", false, "Omit index.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ids, err := parseCIDs(fs.Args())
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	labelMap := map[string]cid.Cid{}
	for title, v := range labels.Map() {
		id, err := cidutil.Parse(v)
		if err != nil {
			fmt.Fprintf(errOut, "label %s: %v\n", title, err)
			return 2
		}
		labelMap[title] = id
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		fmt.Fprintln(errOut, "usage: cascli export [backend flags] [--label title=<cid> ...] <cid> ...")
		return 2
	}

	cas, closeFn, err := bf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	w := out
	if *outPath != "" {
		f, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		w = f
	}
	opts := bundle.ExportOptions{Labels: labelMap, IncludeIndex: !*noIndex}
	if err := bundle.Export(ctx, w, cas, ids, opts); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdImport(ctx context.Context, args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var bf backendFlags
	bf.add(fs)
	pin := fs.Bool("pin", true, "Pin every imported block")
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip archive entries that are not blocks")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(errOut, "usage: cascli import [backend flags] [<file>]")
		return 2
	}

	r := in
	if fs.NArg() == 1 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		r = f
	}

	cas, closeFn, err := bf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	res, err := bundle.Import(ctx, r, cas, bundle.ImportOptions{Pin: *pin, IgnoreUnknown: *ignoreUnknown})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, id := range res.Blocks {
		_, _ = fmt.Fprintln(out, id.String())
	}
	for _, title := range sortedKeys(res.Labels) {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", title, res.Labels[title])
	}
	return 0
}

func parseCIDs(args []string) ([]cid.Cid, error) {
	ids := make([]cid.Cid, 0, len(args))
	for _, a := range args {
		id, err := cidutil.Parse(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// keyValues collects repeatable key=value flags.
type keyValues []string

func (kv *keyValues) String() string { return strings.Join(*kv, ",") }

func (kv *keyValues) Set(v string) error {
	v = strings.TrimSpace(v)
	k, _, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*kv = append(*kv, v)
	return nil
}

func (kv keyValues) Map() map[string]string {
	m := make(map[string]string, len(kv))
	for _, s := range kv {
		k, v, _ := strings.Cut(s, "=")
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}
