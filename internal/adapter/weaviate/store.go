package weaviate

import (
	"context"
	"fmt"
	"strings"

	"bunko/internal/corpus"
	"bunko/internal/retrieval"
	"bunko/internal/vector"
	"bunko/internal/worker"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

var chunkNamespace = uuid.MustParse("6f1c1e7a-6d2b-5d8e-9a57-0b1a6a9b2c3d")

// ObjectID is the deterministic Weaviate id of a chunk, so re-ingesting a
// work overwrites its objects instead of duplicating them.
func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String())
}

type Store struct {
	client *weaviate.Client
	class  string
}

func NewStore(client *weaviate.Client, className string) *Store {
	if className == "" {
		className = vector.DefaultClass
	}
	return &Store{client: client, class: className}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s, s.class)
}

func (s *Store) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Store) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Store) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Store) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

// StoreChunks upserts embedded chunks in a single batch.
func (s *Store) StoreChunks(ctx context.Context, chunks []worker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	objects := make([]*models.Object, 0, len(chunks))
	for _, c := range chunks {
		objects = append(objects, &models.Object{
			Class:      s.class,
			ID:         ObjectID(c.Metadata.ChunkID),
			Properties: properties(c.Text, c.Metadata),
			Vector:     c.Vector,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch upsert: %w", err)
	}
	var failed []string
	for _, r := range res {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			failed = append(failed, e.Message)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("batch upsert: %d object errors: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// DeleteWork removes every chunk of a work.
func (s *Store) DeleteWork(ctx context.Context, workID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"workId"}).
			WithOperator(filters.Equal).
			WithValueString(workID)).
		Do(ctx)
	return err
}

// Query returns the k nearest chunks to vec.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]retrieval.IndexHit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := append(chunkFields(), graphql.Field{
		Name:   "_additional",
		Fields: []graphql.Field{{Name: "distance"}},
	})

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retrieval.ErrSourceUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", graphqlErrors(res.Errors))
	}

	var hits []retrieval.IndexHit
	for _, props := range s.rows(res.Data) {
		hit := hitFromProps(props)
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			hit.Distance = toFloat(additional["distance"])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// GetChunk looks a chunk up by its id. A missing chunk is (nil, nil). A
// failure to reach the index, or a missing class, wraps
// retrieval.ErrSourceUnavailable.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*retrieval.IndexHit, error) {
	where := filters.Where().
		WithPath([]string{"chunkId"}).
		WithOperator(filters.Equal).
		WithValueString(chunkID)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithWhere(where).
		WithLimit(1).
		WithFields(chunkFields()...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retrieval.ErrSourceUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", retrieval.ErrSourceUnavailable, graphqlErrors(res.Errors))
	}

	rows := s.rows(res.Data)
	if len(rows) == 0 {
		return nil, nil
	}
	hit := hitFromProps(rows[0])
	return &hit, nil
}

// CountChunks returns the number of indexed chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", graphqlErrors(res.Errors))
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := agg[s.class].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	return int(toFloat(meta["count"])), nil
}

func (s *Store) rows(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[s.class].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out
}

func chunkFields() []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "workId"},
		{Name: "title"},
		{Name: "author"},
		{Name: "sourcePath"},
		{Name: "chunkIndex"},
		{Name: "offsetStart"},
		{Name: "offsetEnd"},
		{Name: "chunkTokens"},
		{Name: "contextText"},
	}
}

func properties(text string, m corpus.ChunkMetadata) map[string]interface{} {
	return map[string]interface{}{
		"content":     text,
		"chunkId":     m.ChunkID,
		"workId":      m.WorkID,
		"title":       m.Title,
		"author":      m.Author,
		"sourcePath":  m.SourcePath,
		"chunkIndex":  m.ChunkIndex,
		"offsetStart": m.OffsetStart,
		"offsetEnd":   m.OffsetEnd,
		"chunkTokens": m.ChunkTokens,
		"contextText": m.ContextText,
	}
}

func hitFromProps(props map[string]interface{}) retrieval.IndexHit {
	str := func(k string) string {
		v, _ := props[k].(string)
		return v
	}
	num := func(k string) int {
		return int(toFloat(props[k]))
	}
	m := corpus.ChunkMetadata{
		ChunkID:     str("chunkId"),
		WorkID:      str("workId"),
		Title:       str("title"),
		Author:      str("author"),
		SourcePath:  str("sourcePath"),
		ChunkIndex:  num("chunkIndex"),
		OffsetStart: num("offsetStart"),
		OffsetEnd:   num("offsetEnd"),
		ChunkTokens: num("chunkTokens"),
		ContextText: str("contextText"),
	}
	return retrieval.IndexHit{ID: m.ChunkID, Document: str("content"), Metadata: m}
}

// toFloat accepts the number encodings GraphQL responses use.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}

func graphqlErrors(errs []*models.GraphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}
