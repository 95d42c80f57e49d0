// Package indexer walks an image corpus and indexes it into the vector index,
// the caption keyword index, and the file catalog.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/config"
	"github.com/mirusearch/miru/internal/embedding"
	"github.com/mirusearch/miru/internal/index"
	"github.com/mirusearch/miru/internal/keyword"
	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/internal/storage"
)

// metadataQuestion is one visual question asked of each image at index time.
type metadataQuestion struct {
	key      string
	question string
	detailed bool
}

// metadataQuestions are the VQA prompts whose answers become the item's extra
// payload. Detailed questions are only asked when detailed metadata is enabled.
var metadataQuestions = []metadataQuestion{
	{"species", "What animal is this? Answer only the species name.", false},
	{"age_group", "Is this a baby or adult animal?", true},
	{"color_primary", "What is the main/dominant color of the animal?", false},
	{"size", "Is this animal small, medium, large in size?", true},
	{"action", "What is the animal doing? Be specific: sleeping, running, eating, playing, sitting, standing, swimming, flying, etc.", false},
	{"pose", "Describe the pose: lying down, standing, crouching, jumping, profile view, face close-up, etc.", true},
	{"environment", "Where is this animal? Indoor, outdoor, forest, grassland, desert, snow, water, house, cage", false},
	{"color_environment", "Describe the main colour environment:", true},
	{"lighting", "Describe the lighting: day, night", false},
	{"interaction", "Is the animal interacting with anything or anyone? Alone, with humans, with other animals, with what dominant objects?", true},
}

// pointNamespace seeds the deterministic point id derivation so the same file
// path always maps to the same id across re-indexing runs.
var pointNamespace = uuid.MustParse("8a6e1b9c-3f2d-4e7a-9c1b-5d8f0a2e4c6b")

// PointIDForPath derives the stable point id for a corpus file path.
func PointIDForPath(path string) string {
	return uuid.NewSHA1(pointNamespace, []byte(path)).String()
}

// imageExtensions are the file types treated as corpus images.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// IsImage reports whether the path has an image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Options control an indexing run.
type Options struct {
	// Limit caps the number of files processed; 0 means no cap.
	Limit int
	// DryRun runs the full pipeline without writing to any backend.
	DryRun bool
}

// Report summarizes an indexing run.
type Report struct {
	Scanned int `json:"scanned"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

// Indexer indexes corpus images into the vector index, caption index, and
// catalog.
type Indexer struct {
	embedder  embedding.Embedder
	captioner embedding.Captioner
	index     index.SearchIndex
	catalog   storage.Catalog
	captions  keyword.CaptionIndex
	cfg       *config.IndexingConfig
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for progress and per-file warnings.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCaptioner enables VQA metadata extraction. Without a captioner images
// are indexed with folder-derived species only.
func WithCaptioner(c embedding.Captioner) Option {
	return func(idx *Indexer) { idx.captioner = c }
}

// NewIndexer creates an indexer with the given backends.
func NewIndexer(
	embedder embedding.Embedder,
	searchIndex index.SearchIndex,
	catalog storage.Catalog,
	captions keyword.CaptionIndex,
	cfg *config.IndexingConfig,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		embedder: embedder,
		index:    searchIndex,
		catalog:  catalog,
		captions: captions,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// pendingFile is one image awaiting embedding and upsert.
type pendingFile struct {
	path    string
	species string
	caption string
	extra   string
	data    []byte
	modTime time.Time
	size    int64
}

// IndexCorpus walks root, indexes new and changed images, and removes catalog
// entries whose files have disappeared.
func (idx *Indexer) IndexCorpus(ctx context.Context, root string, opts Options) (*Report, error) {
	files, err := gatherImages(root)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}
	idx.logger.Info("indexing corpus",
		zap.String("root", root), zap.Int("files", len(files)), zap.Bool("dry_run", opts.DryRun))

	report := &Report{}
	var pending []*pendingFile
	var points []*index.Point
	var records []*storage.Record

	flushPoints := func() error {
		if len(points) == 0 {
			return nil
		}
		if !opts.DryRun {
			if err := idx.index.Upsert(ctx, points); err != nil {
				return fmt.Errorf("upsert points: %w", err)
			}
			if err := idx.catalog.BatchUpsert(ctx, records); err != nil {
				return fmt.Errorf("update catalog: %w", err)
			}
		}
		report.Indexed += len(points)
		points = points[:0]
		records = records[:0]
		return nil
	}

	flushPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		images := make([][]byte, len(pending))
		for i, p := range pending {
			images[i] = p.data
		}
		vectors, err := idx.embedder.EmbedImages(ctx, images)
		if err != nil {
			return fmt.Errorf("embed images: %w", err)
		}
		for i, p := range pending {
			pointID := PointIDForPath(p.path)
			points = append(points, &index.Point{
				ID:     pointID,
				Vector: vectors[i],
				Attributes: models.ItemAttributes{
					File:    p.path,
					Caption: p.caption,
					Species: p.species,
					Extra:   p.extra,
				},
			})
			records = append(records, &storage.Record{
				Path:    p.path,
				PointID: pointID,
				Species: p.species,
				ModTime: p.modTime,
				Size:    p.size,
			})
			if !opts.DryRun && idx.captions != nil {
				if err := idx.captions.Index(ctx, pointID, &keyword.CaptionDoc{
					Caption: p.caption,
					Species: p.species,
					Extra:   p.extra,
				}); err != nil {
					idx.logger.Warn("failed to index caption",
						zap.String("path", p.path), zap.Error(err))
				}
			}
		}
		pending = pending[:0]
		if len(points) >= idx.upsertBatchSize() {
			return flushPoints()
		}
		return nil
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		p, err := idx.prepareFile(ctx, root, path)
		if err != nil {
			idx.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			report.Failed++
			continue
		}
		if p == nil {
			report.Skipped++
			continue
		}
		pending = append(pending, p)
		if len(pending) >= idx.encodeBatchSize() {
			if err := flushPending(); err != nil {
				return report, err
			}
		}
	}
	if err := flushPending(); err != nil {
		return report, err
	}
	if err := flushPoints(); err != nil {
		return report, err
	}

	if !opts.DryRun {
		removed, err := idx.pruneMissing(ctx, root)
		if err != nil {
			return report, err
		}
		report.Removed = removed
	}

	idx.logger.Info("indexing finished",
		zap.Int("scanned", report.Scanned), zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped), zap.Int("failed", report.Failed),
		zap.Int("removed", report.Removed))
	return report, nil
}

// IndexFile indexes a single image immediately, bypassing batching. Used by
// the corpus watcher.
func (idx *Indexer) IndexFile(ctx context.Context, root, path string) error {
	p, err := idx.prepareFile(ctx, root, path)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	vectors, err := idx.embedder.EmbedImages(ctx, [][]byte{p.data})
	if err != nil {
		return fmt.Errorf("embed image: %w", err)
	}
	pointID := PointIDForPath(p.path)
	point := &index.Point{
		ID:     pointID,
		Vector: vectors[0],
		Attributes: models.ItemAttributes{
			File:    p.path,
			Caption: p.caption,
			Species: p.species,
			Extra:   p.extra,
		},
	}
	if err := idx.index.Upsert(ctx, []*index.Point{point}); err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	if err := idx.catalog.Upsert(ctx, &storage.Record{
		Path:    p.path,
		PointID: pointID,
		Species: p.species,
		ModTime: p.modTime,
		Size:    p.size,
	}); err != nil {
		return fmt.Errorf("update catalog: %w", err)
	}
	if idx.captions != nil {
		if err := idx.captions.Index(ctx, pointID, &keyword.CaptionDoc{
			Caption: p.caption,
			Species: p.species,
			Extra:   p.extra,
		}); err != nil {
			idx.logger.Warn("failed to index caption", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// RemoveFile deletes the image's point, caption entry, and catalog record.
// Unknown paths are a no-op.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	rec, err := idx.catalog.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if err := idx.index.Delete(ctx, []string{rec.PointID}); err != nil {
		return fmt.Errorf("delete point: %w", err)
	}
	if idx.captions != nil {
		if err := idx.captions.Delete(ctx, rec.PointID); err != nil {
			idx.logger.Warn("failed to delete caption entry",
				zap.String("path", path), zap.Error(err))
		}
	}
	return idx.catalog.Delete(ctx, path)
}

// prepareFile stats, change-checks, reads, and annotates one image. Returns
// (nil, nil) when the catalog shows the file unchanged.
func (idx *Indexer) prepareFile(ctx context.Context, root, path string) (*pendingFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if rec, err := idx.catalog.Get(ctx, path); err == nil && !rec.Changed(info.ModTime(), info.Size()) {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	species := InferSpeciesFromPath(root, path)
	caption, extra, vqaSpecies := idx.extractMetadata(ctx, data, species)
	// Folder name wins; VQA fills in for files sitting at the corpus root.
	if species == "" {
		species = strings.ToLower(strings.TrimSpace(vqaSpecies))
	}

	return &pendingFile{
		path:    path,
		species: species,
		caption: caption,
		extra:   extra,
		data:    data,
		modTime: info.ModTime(),
		size:    info.Size(),
	}, nil
}

// extractMetadata runs the configured VQA questions against the image. The
// species answer doubles as the caption. Failures degrade to empty metadata.
func (idx *Indexer) extractMetadata(ctx context.Context, image []byte, folderSpecies string) (caption, extra, species string) {
	if idx.captioner == nil {
		return "", "", ""
	}
	answers := make(map[string]string, len(metadataQuestions)+1)
	for _, q := range metadataQuestions {
		if q.detailed && !idx.cfg.DetailedMetadata {
			continue
		}
		answer, err := idx.captioner.Describe(ctx, image, q.question)
		if err != nil {
			idx.logger.Warn("vqa question failed", zap.String("key", q.key), zap.Error(err))
			continue
		}
		answers[q.key] = answer
	}
	answers["folder_name"] = folderSpecies

	encoded, err := json.Marshal(answers)
	if err != nil {
		return answers["species"], "", answers["species"]
	}
	return answers["species"], string(encoded), answers["species"]
}

// pruneMissing removes catalog entries under root whose files no longer exist.
func (idx *Indexer) pruneMissing(ctx context.Context, root string) (int, error) {
	recs, err := idx.catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog: %w", err)
	}
	removed := 0
	prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	for _, rec := range recs {
		if !strings.HasPrefix(rec.Path, prefix) {
			continue
		}
		if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
			continue
		}
		if err := idx.RemoveFile(ctx, rec.Path); err != nil {
			idx.logger.Warn("failed to remove vanished file",
				zap.String("path", rec.Path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (idx *Indexer) encodeBatchSize() int {
	if idx.cfg != nil && idx.cfg.EncodeBatchSize > 0 {
		return idx.cfg.EncodeBatchSize
	}
	return 16
}

func (idx *Indexer) upsertBatchSize() int {
	if idx.cfg != nil && idx.cfg.UpsertBatchSize > 0 {
		return idx.cfg.UpsertBatchSize
	}
	return 64
}

// InferSpeciesFromPath returns the lowercased first directory under root, or
// "" for files directly at the root.
func InferSpeciesFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[0])
}

// gatherImages returns all image paths under root, sorted for deterministic
// runs.
func gatherImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImage(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
