package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClass holds one object per indexed chunk.
const DefaultClass = "AozoraChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// ChunkProperties lists the properties stored on every chunk object.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "chunkId", DataType: []string{"string"}}, // exact match
		{Name: "workId", DataType: []string{"string"}},  // exact match
		{Name: "title", DataType: []string{"text"}},
		{Name: "author", DataType: []string{"text"}},
		{Name: "sourcePath", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "offsetStart", DataType: []string{"int"}},
		{Name: "offsetEnd", DataType: []string{"int"}},
		{Name: "chunkTokens", DataType: []string{"int"}},
		{Name: "contextText", DataType: []string{"text"}},
	}
}

// EnsureSchema creates the chunk class, or adds properties missing from
// an older version of it. Distances are cosine, so they fall in [0, 2].
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	if className == "" {
		className = DefaultClass
	}
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return fmt.Errorf("check class %s: %w", className, err)
	}

	properties := ChunkProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A chunk of an Aozora Bunko work",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return fmt.Errorf("get class %s: %w", className, err)
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}

	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, className, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
