package motion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/mirrorwell/exhibit/backend/internal/model/motion"
)

// Match pairs a corpus entry with its similarity to a query.
type Match struct {
	Entry motion.Entry
	Score float64
}

// Corpus loads the tabular motion corpus, embeds rows on demand and matches
// free-text motion summaries against it. The first non-empty source (primary,
// then fallback) wins and stays the persistence target for the process
// lifetime.
type Corpus struct {
	primaryPath  string
	fallbackPath string
	embedder     embedding.Embedder

	mu         sync.Mutex
	entries    []motion.Entry
	activePath string
	loaded     bool
	attempted  bool
}

// NewCorpus wires the corpus. embedder may be nil; matching then serves only
// rows with already-cached vectors.
func NewCorpus(primaryPath, fallbackPath string, embedder embedding.Embedder) *Corpus {
	return &Corpus{primaryPath: primaryPath, fallbackPath: fallbackPath, embedder: embedder}
}

// load reads the first source that yields usable rows. Caller holds c.mu.
func (c *Corpus) load() error {
	if c.loaded {
		return nil
	}

	for _, path := range []string{c.primaryPath, c.fallbackPath} {
		if path == "" {
			continue
		}
		entries, err := readCorpusFile(path)
		if err != nil {
			log.Printf("[motion] corpus source %s unusable: %v", path, err)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		c.entries = entries
		c.activePath = path
		c.loaded = true
		log.Printf("[motion] corpus loaded from %s (%d entries)", path, len(entries))
		return nil
	}

	c.loaded = true
	return fmt.Errorf("no usable motion corpus source")
}

// EnsureEmbeddings embeds every row whose cached vector is missing or stale
// (computed from a text source that would no longer be preferred), then
// rewrites the active source file before caching the rows. Failed rows stay
// vectorless and are excluded from matching, not retried per call.
func (c *Corpus) EnsureEmbeddings(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(); err != nil {
		return err
	}
	if c.attempted {
		return nil
	}
	c.attempted = true

	var pendingIdx []int
	var pendingTexts []string
	for i, entry := range c.entries {
		if entry.EmbeddingValid() {
			continue
		}
		text := entry.PreferredText()
		if text == "" {
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pendingTexts = append(pendingTexts, text)
	}

	if len(pendingIdx) == 0 {
		return nil
	}
	if c.embedder == nil {
		log.Printf("[motion] embedder unavailable, %d rows stay vectorless", len(pendingIdx))
		return nil
	}

	vectors, err := c.embedder.EmbedStrings(ctx, pendingTexts)
	if err != nil {
		log.Printf("[motion] batch embedding failed, %d rows stay vectorless: %v", len(pendingIdx), err)
		return nil
	}
	if len(vectors) != len(pendingIdx) {
		log.Printf("[motion] embedder returned %d vectors for %d rows, skipping", len(vectors), len(pendingIdx))
		return nil
	}

	for n, i := range pendingIdx {
		c.entries[i].Embedding = vectors[n]
		c.entries[i].EmbeddingSource = c.entries[i].PreferredSource()
	}

	if err := writeCorpusFile(c.activePath, c.entries); err != nil {
		// Best-effort durability: in-memory vectors still serve this process.
		log.Printf("[motion] corpus rewrite failed: %v", err)
	}
	log.Printf("[motion] embedded %d corpus rows", len(pendingIdx))
	return nil
}

// Entries returns a copy of the cached rows for inspection.
func (c *Corpus) Entries() []motion.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(); err != nil {
		return nil
	}
	out := make([]motion.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ActivePath reports which source file won the load.
func (c *Corpus) ActivePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePath
}

// FindClosest embeds the query and returns the corpus entry with the highest
// cosine similarity. Nil result when the query is empty, the corpus is empty
// or no row carries a valid vector.
func (c *Corpus) FindClosest(ctx context.Context, text string) (*Match, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if err := c.EnsureEmbeddings(ctx); err != nil {
		return nil, err
	}
	if c.embedder == nil {
		return nil, nil
	}

	vectors, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, nil
	}

	entries := c.Entries()
	best, score, ok := Closest(vectors[0], entries)
	if !ok {
		return nil, nil
	}
	return &Match{Entry: best, Score: score}, nil
}

// CSV layout shared by both corpus sources. All reads and writes go through
// this one pair.
var corpusHeader = []string{"index", "description", "prompt", "embedding_json", "embedding_source"}

func readCorpusFile(path string) ([]motion.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCorpus(f)
}

// ReadCorpus decodes corpus rows. Rows with malformed index or embedding
// cells are kept with the bad cell zeroed rather than dropped.
func ReadCorpus(r io.Reader) ([]motion.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse corpus csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}

	cell := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	entries := make([]motion.Entry, 0, len(records)-1)
	for _, row := range records[1:] {
		entry := motion.Entry{
			Description: cell(row, "description"),
			Prompt:      cell(row, "prompt"),
		}
		if entry.Description == "" && entry.Prompt == "" {
			continue
		}

		if raw := cell(row, "index"); raw != "" {
			if idx, err := strconv.Atoi(raw); err == nil {
				entry.Index = idx
			}
		}

		if raw := cell(row, "embedding_json"); raw != "" {
			var vec []float64
			if err := json.Unmarshal([]byte(raw), &vec); err == nil {
				entry.Embedding = vec
			}
		}
		entry.EmbeddingSource = motion.Source(cell(row, "embedding_source"))

		entries = append(entries, entry)
	}
	return entries, nil
}

func writeCorpusFile(path string, entries []motion.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCorpus(f, entries)
}

// WriteCorpus encodes the full corpus, embedding vectors as JSON arrays.
func WriteCorpus(w io.Writer, entries []motion.Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(corpusHeader); err != nil {
		return err
	}

	for _, entry := range entries {
		embeddingJSON := ""
		if len(entry.Embedding) > 0 {
			data, err := json.Marshal(entry.Embedding)
			if err != nil {
				return fmt.Errorf("marshal embedding for index %d: %w", entry.Index, err)
			}
			embeddingJSON = string(data)
		}

		row := []string{
			strconv.Itoa(entry.Index),
			entry.Description,
			entry.Prompt,
			embeddingJSON,
			string(entry.EmbeddingSource),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
