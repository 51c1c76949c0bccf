// Package checkpoint stores versioned policy checkpoints as a directory
// tree (one directory per id, holding metadata.json and a compressed
// parameter blob), indexed by a rebuildable sqlite cache for point and
// ranked queries.
package checkpoint

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	_ "modernc.org/sqlite"

	"github.com/mscrnt/sentientos/internal/logging"
)

var log = logging.For("checkpoint")

// Metadata describes one checkpoint's training provenance, independent of
// the parameter blob itself.
type Metadata struct {
	Episode           int             `json:"episode"`
	TotalSteps        int             `json:"total_steps"`
	AverageReward     float64         `json:"average_reward"`
	BestReward        float64         `json:"best_reward"`
	TrainingTimeHours float64         `json:"training_time_hours"`
	Hyperparameters   json.RawMessage `json:"hyperparameters,omitempty"`
}

// Checkpoint is one saved policy: an opaque parameter blob plus metadata.
type Checkpoint struct {
	ID         uuid.UUID `json:"id"`
	ModelType  string    `json:"model_type"`
	Parameters []byte    `json:"-"`
	Digest     string    `json:"digest"`
	Metadata   Metadata  `json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages the on-disk checkpoint tree and its sqlite query index.
type Store struct {
	dir string
	db  *sql.DB
}

// Open prepares the checkpoint store at dir, creating it if necessary and
// rebuilding the query index from the directory tree whenever the index
// file is missing or its row count disagrees with the tree (the directory
// tree is the durable source of truth; the index is a disposable cache).
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "index.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		episode INTEGER,
		total_steps INTEGER,
		average_reward REAL,
		best_reward REAL,
		training_time_hours REAL,
		created_at TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{dir: dir, db: db}
	if err := s.reconcileIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the index database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) reconcileIndex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var row int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM checkpoints`).Scan(&row); err != nil {
		return err
	}

	dirCount := 0
	for _, e := range entries {
		if e.IsDir() {
			if _, err := uuid.Parse(e.Name()); err == nil {
				dirCount++
			}
		}
	}
	if dirCount == row {
		return nil
	}

	log.Warn().Int("tree", dirCount).Int("index", row).Msg("checkpoint index stale, rebuilding")
	if _, err := s.db.Exec(`DELETE FROM checkpoints`); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		meta, createdAt, err := s.readMetadataFile(id)
		if err != nil {
			log.Warn().Str("id", id.String()).Err(err).Msg("skipping unreadable checkpoint during reindex")
			continue
		}
		if err := s.upsertIndex(id, meta, createdAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) checkpointDir(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}

func (s *Store) readMetadataFile(id uuid.UUID) (Metadata, time.Time, error) {
	data, err := os.ReadFile(filepath.Join(s.checkpointDir(id), "metadata.json"))
	if err != nil {
		return Metadata{}, time.Time{}, err
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return Metadata{}, time.Time{}, err
	}
	return ckpt.Metadata, ckpt.CreatedAt, nil
}

func (s *Store) upsertIndex(id uuid.UUID, meta Metadata, createdAt time.Time) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO checkpoints
		(id, episode, total_steps, average_reward, best_reward, training_time_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), meta.Episode, meta.TotalSteps, meta.AverageReward, meta.BestReward,
		meta.TrainingTimeHours, createdAt.Format(time.RFC3339Nano))
	return err
}

// Save writes checkpoint.Parameters as a gzip-compressed blob and its
// metadata as JSON into a new directory named by a freshly minted id,
// recording a blake2b digest of the uncompressed parameters so a later
// Load can detect corruption.
func (s *Store) Save(modelType string, parameters []byte, meta Metadata) (uuid.UUID, error) {
	id := uuid.New()
	dir := s.checkpointDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return uuid.Nil, err
	}

	digest := blake2b.Sum256(parameters)
	ckpt := Checkpoint{
		ID:        id,
		ModelType: modelType,
		Digest:    fmt.Sprintf("%x", digest),
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}

	metaJSON, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return uuid.Nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaJSON, 0o644); err != nil {
		return uuid.Nil, err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(parameters); err != nil {
		return uuid.Nil, err
	}
	if err := gw.Close(); err != nil {
		return uuid.Nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "model.bin.gz"), buf.Bytes(), 0o644); err != nil {
		return uuid.Nil, err
	}

	if err := s.upsertIndex(id, meta, ckpt.CreatedAt); err != nil {
		return uuid.Nil, err
	}

	log.Info().Str("id", id.String()).Int("episode", meta.Episode).Msg("saved checkpoint")
	return id, nil
}

// ErrDigestMismatch is returned by Load when the decompressed parameter
// blob does not match the digest recorded at save time.
var ErrDigestMismatch = fmt.Errorf("checkpoint: parameter digest mismatch")

// Load reads back a checkpoint's metadata and decompressed parameters,
// verifying the stored digest.
func (s *Store) Load(id uuid.UUID) (Checkpoint, error) {
	dir := s.checkpointDir(id)

	metaJSON, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return Checkpoint{}, err
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(metaJSON, &ckpt); err != nil {
		return Checkpoint{}, err
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "model.bin.gz"))
	if err != nil {
		return Checkpoint{}, err
	}
	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Checkpoint{}, err
	}
	defer gr.Close()
	parameters, err := io.ReadAll(gr)
	if err != nil {
		return Checkpoint{}, err
	}

	digest := blake2b.Sum256(parameters)
	if fmt.Sprintf("%x", digest) != ckpt.Digest {
		return Checkpoint{}, ErrDigestMismatch
	}

	ckpt.Parameters = parameters
	return ckpt, nil
}

// List returns every checkpoint's metadata from the index.
func (s *Store) List() ([]Metadata, error) {
	rows, err := s.db.Query(`SELECT episode, total_steps, average_reward, best_reward, training_time_hours FROM checkpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.Episode, &m.TotalSteps, &m.AverageReward, &m.BestReward, &m.TrainingTimeHours); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Best returns the id of the checkpoint with the highest best_reward, or
// ok=false if the store is empty.
func (s *Store) Best() (id uuid.UUID, ok bool, err error) {
	var idStr string
	row := s.db.QueryRow(`SELECT id FROM checkpoints ORDER BY best_reward DESC LIMIT 1`)
	if err := row.Scan(&idStr); err != nil {
		if err == sql.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false, err
	}
	return parsed, true, nil
}

// Cleanup deletes all but the keepCount checkpoints with the highest
// episode numbers, returning the number removed.
func (s *Store) Cleanup(keepCount int) (int, error) {
	rows, err := s.db.Query(`SELECT id, episode FROM checkpoints ORDER BY episode ASC`)
	if err != nil {
		return 0, err
	}
	type row struct {
		id      string
		episode int
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.episode); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, r)
	}
	rows.Close()

	if len(all) <= keepCount {
		return 0, nil
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].episode < all[j].episode })
	toRemove := all[:len(all)-keepCount]

	removed := 0
	for _, r := range toRemove {
		id, err := uuid.Parse(r.id)
		if err != nil {
			continue
		}
		if err := os.RemoveAll(s.checkpointDir(id)); err != nil {
			return removed, err
		}
		if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE id = ?`, r.id); err != nil {
			return removed, err
		}
		removed++
	}

	log.Info().Int("removed", removed).Msg("cleaned up old checkpoints")
	return removed, nil
}
