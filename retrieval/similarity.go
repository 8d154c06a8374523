// Package retrieval implements the optional task-similarity collaborator the
// trust ledger consults when evaluating an agent for a task. Past task
// outcomes are indexed in an embedded chromem-go vector store and queried by
// the incoming task's text.
package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/trust"
	"github.com/localswarm/localswarm/types"
)

// Config configures the similarity index.
type Config struct {
	// PersistPath persists the index to disk when set; empty keeps it in
	// memory.
	PersistPath string `yaml:"persist_path"`
	// Collection names the chromem collection.
	Collection string `yaml:"collection"`
	// MinSimilarity filters out weak matches.
	MinSimilarity float32 `yaml:"min_similarity"`
}

// SimilarityIndex records task outcomes and answers FindSimilarTasks queries.
type SimilarityIndex struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	cfg        Config
	logger     *zap.Logger
}

// NewSimilarityIndex creates an index. embed is the embedding function used
// for both indexing and querying; pass nil to use chromem's default (which
// requires an OpenAI API key in the environment).
func NewSimilarityIndex(cfg Config, embed chromem.EmbeddingFunc, logger *zap.Logger) (*SimilarityIndex, error) {
	if cfg.Collection == "" {
		cfg.Collection = "task-history"
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(cfg.PersistPath, "tasks.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("create persistent task index: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create task collection: %w", err)
	}

	return &SimilarityIndex{
		db:         db,
		collection: collection,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "similarity_index")),
	}, nil
}

// Record indexes a completed task and its outcome.
func (s *SimilarityIndex) Record(ctx context.Context, task *types.Task, success bool) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task with id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:      task.ID,
		Content: taskText(task),
		Metadata: map[string]string{
			"task_type": task.Type,
			"success":   strconv.FormatBool(success),
		},
	})
	if err != nil {
		return fmt.Errorf("index task %s: %w", task.ID, err)
	}
	return nil
}

// FindSimilarTasks implements trust.TaskRetriever.
func (s *SimilarityIndex) FindSimilarTasks(ctx context.Context, task *types.Task, limit int) ([]trust.SimilarTask, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.Lock()
	count := s.collection.Count()
	s.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := s.collection.Query(ctx, taskText(task), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query task index: %w", err)
	}

	similar := make([]trust.SimilarTask, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.cfg.MinSimilarity {
			continue
		}
		success, _ := strconv.ParseBool(r.Metadata["success"])
		similar = append(similar, trust.SimilarTask{
			TaskID:     r.ID,
			Similarity: float64(r.Similarity),
			Success:    success,
		})
	}
	return similar, nil
}

// Count returns the number of indexed tasks.
func (s *SimilarityIndex) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count()
}

func taskText(task *types.Task) string {
	if task == nil {
		return ""
	}
	if task.Type == "" {
		return task.Description
	}
	return task.Type + ": " + task.Description
}

var _ trust.TaskRetriever = (*SimilarityIndex)(nil)
