// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package registry

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const modelExt = ".gob.gz"

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// storedFile is the on-disk format for model files.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// FileRegistry is a Registry backed by a local directory.
type FileRegistry struct {
	baseDir string
	mu      sync.RWMutex

	// latest version per model name
	versions map[string]int
}

// NewFileRegistry opens (creating if needed) a registry rooted at baseDir.
func NewFileRegistry(baseDir string) (*FileRegistry, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	r := &FileRegistry{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	if err := r.scan(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return r, nil
}

// Dir returns the registry root directory.
func (r *FileRegistry) Dir() string {
	return r.baseDir
}

func (r *FileRegistry) scan() error {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseModelFilename(entry.Name())
		if !ok {
			continue
		}
		if version > r.versions[name] {
			r.versions[name] = version
		}
	}
	return nil
}

// parseModelFilename splits "clv_bgnbd_v3.gob.gz" into ("clv_bgnbd", 3).
func parseModelFilename(filename string) (name string, version int, ok bool) {
	base, found := strings.CutSuffix(filename, modelExt)
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx <= 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version <= 0 {
		return "", 0, false
	}
	return base[:idx], version, true
}

func checkName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

// Register encodes artifact as the next version of name and returns that version.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (r *FileRegistry) Register(ctx context.Context, name string, artifact any, meta Metadata) (int, error) {
	if err := checkName("model", name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(artifact); err != nil {
		return 0, fmt.Errorf("encode model: %w", err)
	}
	raw := buf.Bytes()
	hash := sha256.Sum256(raw)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return 0, fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return 0, fmt.Errorf("finalize compression: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	version := r.versions[name] + 1
	meta.Name = name
	meta.Version = version
	meta.Checksum = hex.EncodeToString(hash[:])
	meta.SizeBytes = int64(compressed.Len())
	meta.SavedAt = time.Now().UTC()
	if meta.TrainedAt.IsZero() {
		meta.TrainedAt = meta.SavedAt
	}

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		return 0, fmt.Errorf("encode model file: %w", err)
	}
	if err := writeFileAtomic(r.modelPath(name, version), out.Bytes()); err != nil {
		return 0, fmt.Errorf("write model file: %w", err)
	}

	r.versions[name] = version
	return version, nil
}

// Load decodes a model version into target. Version 0 loads the latest.
func (r *FileRegistry) Load(ctx context.Context, name string, version int, target any) (*Metadata, error) {
	if err := checkName("model", name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(ctx, name, version, target)
}

func (r *FileRegistry) load(ctx context.Context, name string, version int, target any) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if version == 0 {
		latest, ok := r.versions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		version = latest
	}

	data, err := os.ReadFile(r.modelPath(name, version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
		}
		return nil, fmt.Errorf("read model file: %w", err)
	}

	var sf storedFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode model file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("%w: %s v%d: expected %s, got %s",
			ErrChecksumMismatch, name, version, sf.Metadata.Checksum, checksum)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &sf.Metadata, nil
}

// LoadStage decodes the version currently promoted to stage.
func (r *FileRegistry) LoadStage(ctx context.Context, name, stage string, target any) (*Metadata, error) {
	if err := checkName("model", name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stages, err := r.readStages(name)
	if err != nil {
		return nil, err
	}
	version, ok := stages[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s version", ErrModelNotFound, name, stage)
	}
	return r.load(ctx, name, version, target)
}

// Promote points stage at an existing version of name.
func (r *FileRegistry) Promote(ctx context.Context, name string, version int, stage string) error {
	if err := checkName("model", name); err != nil {
		return err
	}
	if err := checkName("stage", stage); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.modelPath(name, version)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
		}
		return fmt.Errorf("stat model file: %w", err)
	}

	stages, err := r.readStages(name)
	if err != nil {
		return err
	}
	stages[stage] = version

	data, err := json.MarshalIndent(stages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	if err := writeFileAtomic(r.stagesPath(name), data); err != nil {
		return fmt.Errorf("write stages: %w", err)
	}
	return nil
}

// Stages returns the stage pointers for name.
func (r *FileRegistry) Stages(name string) (map[string]int, error) {
	if err := checkName("model", name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readStages(name)
}

// LatestVersion returns the newest registered version of name.
func (r *FileRegistry) LatestVersion(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[name]
	return v, ok
}

// Versions returns all stored versions of name in ascending order.
func (r *FileRegistry) Versions(name string) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listVersions(name)
}

func (r *FileRegistry) listVersions(name string) ([]int, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		n, v, ok := parseModelFilename(entry.Name())
		if ok && n == name {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// Prune removes old versions of name, keeping the newest keep versions and
// any version a stage points at.
func (r *FileRegistry) Prune(ctx context.Context, name string, keep int) (int, error) {
	if err := checkName("model", name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, err := r.listVersions(name)
	if err != nil {
		return 0, err
	}
	stages, err := r.readStages(name)
	if err != nil {
		return 0, err
	}
	pinned := make(map[int]bool, len(stages))
	for _, v := range stages {
		pinned[v] = true
	}

	removed := 0
	for i := 0; i < len(versions)-keep; i++ {
		if pinned[versions[i]] {
			continue
		}
		if err := os.Remove(r.modelPath(name, versions[i])); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("delete model: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (r *FileRegistry) readStages(name string) (map[string]int, error) {
	stages := make(map[string]int)
	data, err := os.ReadFile(r.stagesPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stages, nil
		}
		return nil, fmt.Errorf("read stages: %w", err)
	}
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("decode stages for %s: %w", name, err)
	}
	return stages, nil
}

func (r *FileRegistry) modelPath(name string, version int) string {
	return filepath.Join(r.baseDir, fmt.Sprintf("%s_v%d%s", name, version, modelExt))
}

func (r *FileRegistry) stagesPath(name string) string {
	return filepath.Join(r.baseDir, name+".stages.json")
}

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()        //nolint:errcheck // already failing
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return err
	}
	return os.Rename(tmpName, path)
}
