// Package jsonl persists passages and graph artifacts as JSON files on the
// local filesystem. Every file is written to a temporary name and renamed,
// so readers never observe a partial record.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

const (
	documentsDir = "documents"
	metadataDir  = "metadata"
	fileExt      = ".jsonl"
)

var _ driven.PassageStore = (*PassageStore)(nil)

// PassageStore writes each passage twice:
//
//	<root>/documents/<source>/<batch>/<uuid>.jsonl  {"content", "metadata": {"uuid", "source"}}
//	<root>/metadata/<source>/<batch>/<uuid>.jsonl   full flat metadata
//
// Each file holds a single JSON line. Distinct uuids never share a file, so
// concurrent writers into one batch do not interfere.
type PassageStore struct {
	root string
}

// documentRecord is the minimal record consumed by indexing.
type documentRecord struct {
	Content  string    `json:"content"`
	Metadata recordKey `json:"metadata"`
}

type recordKey struct {
	UUID   string        `json:"uuid"`
	Source domain.Source `json:"source"`
}

// NewPassageStore creates the documents and metadata trees under root.
func NewPassageStore(root string) (*PassageStore, error) {
	for _, dir := range []string{documentsDir, metadataDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s tree: %v", domain.ErrPersistence, dir, err)
		}
	}
	return &PassageStore{root: root}, nil
}

// Root returns the documents tree.
func (s *PassageStore) Root() string {
	return filepath.Join(s.root, documentsDir)
}

// ValidateBatch rejects batch ids that could escape their partition.
func ValidateBatch(batch string) error {
	if batch == "" || batch == "." || batch == ".." || strings.ContainsAny(batch, `/\`) {
		return fmt.Errorf("%w: invalid batch id %q", domain.ErrInvalidInput, batch)
	}
	return nil
}

func (s *PassageStore) paths(source domain.Source, batch, id string) (doc, meta string) {
	name := id + fileExt
	return filepath.Join(s.root, documentsDir, string(source), batch, name),
		filepath.Join(s.root, metadataDir, string(source), batch, name)
}

// Save implements driven.PassageStore.
func (s *PassageStore) Save(ctx context.Context, batch string, docs []domain.RAGDocument) error {
	if err := ValidateBatch(batch); err != nil {
		return err
	}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		md := d.Metadata
		if strings.ContainsAny(md.UUID, `/\`) {
			return fmt.Errorf("%w: invalid passage uuid %q", domain.ErrInvalidInput, md.UUID)
		}
		if err := md.Validate(); err != nil {
			return fmt.Errorf("passage %s: %w", md.UUID, err)
		}

		docLine, err := json.Marshal(documentRecord{Content: d.Content, Metadata: recordKey{UUID: md.UUID, Source: md.Source}})
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", md.UUID, err)
		}
		metaLine, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("encoding metadata %s: %w", md.UUID, err)
		}

		docPath, metaPath := s.paths(md.Source, batch, md.UUID)
		// Metadata first: a visible document always has its metadata.
		if err := writeAtomic(metaPath, append(metaLine, '\n')); err != nil {
			return err
		}
		if err := writeAtomic(docPath, append(docLine, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// ListBatch implements driven.PassageStore. Results are ordered by source,
// then title, then chunk type and index.
func (s *PassageStore) ListBatch(ctx context.Context, batch string, sources []domain.Source) ([]driven.StoredPassage, error) {
	if err := ValidateBatch(batch); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		sources = domain.AllSources()
	}

	var out []driven.StoredPassage
	for _, src := range sources {
		dir := filepath.Join(s.root, documentsDir, string(src), batch)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrPersistence, dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
				continue
			}
			p, err := s.ReadPath(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	sortPassages(out)
	return out, nil
}

// Walk implements driven.PassageStore.
func (s *PassageStore) Walk(ctx context.Context, fn func(driven.StoredPassage) error) error {
	return filepath.WalkDir(s.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, fileExt) {
			return nil
		}
		p, err := s.ReadPath(path)
		if err != nil {
			return err
		}
		return fn(p)
	})
}

// ParsePath splits a documents-tree path into source, batch and uuid.
func (s *PassageStore) ParsePath(path string) (domain.Source, string, string, bool) {
	rel, err := filepath.Rel(s.Root(), path)
	if err != nil {
		return "", "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], fileExt) {
		return "", "", "", false
	}
	src := domain.Source(parts[0])
	if !src.IsValid() {
		return "", "", "", false
	}
	return src, parts[1], strings.TrimSuffix(parts[2], fileExt), true
}

// ReadPath loads one passage from its documents-tree path, joining the
// parallel metadata record when present.
func (s *PassageStore) ReadPath(path string) (driven.StoredPassage, error) {
	src, batch, id, ok := s.ParsePath(path)
	if !ok {
		return driven.StoredPassage{}, fmt.Errorf("%w: %s is not a passage path", domain.ErrInvalidInput, path)
	}

	var rec documentRecord
	if err := readLine(path, &rec); err != nil {
		return driven.StoredPassage{}, err
	}

	md := domain.Metadata{UUID: id, Source: src}
	_, metaPath := s.paths(src, batch, id)
	if err := readLine(metaPath, &md); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return driven.StoredPassage{}, err
	}
	return driven.StoredPassage{
		BatchUUID: batch,
		Document:  domain.RAGDocument{Content: rec.Content, Metadata: md},
	}, nil
}

func readLine(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, v); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrPersistence, path, err)
	}
	return fmt.Errorf("%s is empty: %w", path, domain.ErrNotFound)
}

func sortPassages(ps []driven.StoredPassage) {
	order := make(map[domain.Source]int)
	for i, s := range domain.AllSources() {
		order[s] = i
	}
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i].Document.Metadata, ps[j].Document.Metadata
		if a.Source != b.Source {
			return order[a.Source] < order[b.Source]
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.ChunkType != b.ChunkType {
			return a.ChunkType == domain.ChunkTypeSummary
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.UUID < b.UUID
	})
}

// writeAtomic writes data to a temporary file beside path and renames it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", domain.ErrPersistence, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrPersistence, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming into %s: %v", domain.ErrPersistence, path, err)
	}
	return nil
}
