// Package bundle moves title documents between content stores as a
// deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>   raw document bytes
//	index.json     optional; block sizes and title-id labels
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 1

var epoch = time.Unix(0, 0).UTC()

// ExportOptions controls Export.
type ExportOptions struct {
	// Labels maps a title id to the address of its document.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json after the blocks.
	IncludeIndex bool
}

// Export writes the blocks for ids to w. Entry order is lexicographic and
// headers are normalized, so the same input always yields the same bytes.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) (err error) {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	blocks := make([]indexBlock, 0, len(names))
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("bundle: get %s: %w", s, err)
		}
		if !cidutil.Matches(id, b) {
			return storage.ErrCIDMismatch
		}
		if err := writeEntry(tw, "blocks/"+s, b); err != nil {
			return err
		}
		blocks = append(blocks, indexBlock{CID: s, Size: len(b)})
	}

	if !opts.IncludeIndex {
		return nil
	}
	idx := index{
		Version:   FormatVersion,
		CIDCodec:  "raw",
		Multihash: "sha2-256",
		Blocks:    blocks,
	}
	labels, err := sortedLabels(opts.Labels)
	if err != nil {
		return err
	}
	idx.Labels = labels

	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeEntry(tw, "index.json", append(b, '\n'))
}

// ImportOptions controls Import.
type ImportOptions struct {
	// IgnoreUnknown skips entries outside blocks/ instead of failing.
	IgnoreUnknown bool
	// Pin pins every imported block in the destination.
	Pin bool
}

// ImportResult lists what Import stored.
type ImportResult struct {
	Blocks []cid.Cid
	Labels map[string]cid.Cid
}

// Import reads an archive from r and stores every block in cas. Each block
// must hash to the CID in its entry name.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if cas == nil {
		return res, errors.New("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		name := cleanPath(h.Name)
		if name == "" {
			return res, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		if name == "index.json" {
			var idx index
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				return res, fmt.Errorf("bundle: index.json: %w", err)
			}
			if res.Labels, err = idx.labelMap(); err != nil {
				return res, err
			}
			continue
		}

		cidStr, ok := strings.CutPrefix(name, "blocks/")
		if !ok {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry %s", name)
		}
		id, err := cid.Decode(cidStr)
		if err != nil || !id.Defined() {
			return res, storage.ErrInvalidCID
		}
		if _, dup := seen[cidStr]; dup {
			return res, fmt.Errorf("bundle: duplicate block %s", cidStr)
		}
		seen[cidStr] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return res, err
		}
		if !cidutil.Matches(id, payload) {
			return res, storage.ErrCIDMismatch
		}
		got, err := cas.Put(ctx, payload)
		if err != nil {
			return res, fmt.Errorf("bundle: put %s: %w", cidStr, err)
		}
		if !got.Equals(id) {
			return res, storage.ErrCIDMismatch
		}
		if opts.Pin {
			if err := cas.Pin(ctx, id); err != nil {
				return res, fmt.Errorf("bundle: pin %s: %w", cidStr, err)
			}
		}
		res.Blocks = append(res.Blocks, id)
	}
}

type index struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Title string `json:"title"`
	CID   string `json:"cid"`
}

func (idx index) labelMap() (map[string]cid.Cid, error) {
	if len(idx.Labels) == 0 {
		return nil, nil
	}
	out := make(map[string]cid.Cid, len(idx.Labels))
	for _, l := range idx.Labels {
		id, err := cidutil.Parse(l.CID)
		if err != nil {
			return nil, fmt.Errorf("bundle: label %q: %w", l.Title, storage.ErrInvalidCID)
		}
		out[l.Title] = id
	}
	return out, nil
}

func sortedLabels(m map[string]cid.Cid) ([]indexLabel, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "" {
			return nil, errors.New("bundle: empty label")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]indexLabel, 0, len(keys))
	for _, k := range keys {
		if !m[k].Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, indexLabel{Title: k, CID: m[k].String()})
	}
	return out, nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanPath normalizes an entry name and rejects traversal.
func cleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
