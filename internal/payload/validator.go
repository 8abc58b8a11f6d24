// Package payload validates channel batch JSON files before they enter a
// dedup run.
package payload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed channel_batch.schema.json
var channelBatchSchemaJSON string

// ChannelArticle is one article as delivered by a collection channel.
type ChannelArticle struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary,omitempty"`
	SourceName  string  `json:"source_name"`
	PublishedAt *string `json:"published_at,omitempty"`
	Language    *string `json:"language,omitempty"`
	Region      *string `json:"region,omitempty"`
	Category    *string `json:"category,omitempty"`
	Layer       *string `json:"layer,omitempty"`
}

// ChannelBatch is the parsed content of one <channel>_articles.json file.
type ChannelBatch struct {
	Channel  string           `json:"channel"`
	Articles []ChannelArticle `json:"articles"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateChannelBatch validates raw against the embedded schema plus the
// semantic rules the schema cannot express, and returns the parsed batch.
func ValidateChannelBatch(raw json.RawMessage) (*ChannelBatch, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode batch JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize batch JSON: %w", err)
	}

	var batch ChannelBatch
	if err := json.Unmarshal(normalized, &batch); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}

	if err := validateSemantics(&batch); err != nil {
		return nil, err
	}

	return &batch, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("channel_batch.schema.json", strings.NewReader(channelBatchSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("channel_batch.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("batch contains trailing content")
	}

	return value, nil
}

func validateSemantics(batch *ChannelBatch) error {
	if batch == nil {
		return fmt.Errorf("batch is nil")
	}

	if strings.TrimSpace(batch.Channel) == "" {
		return fmt.Errorf("channel must not be empty")
	}

	for i, article := range batch.Articles {
		if strings.TrimSpace(article.URL) == "" {
			return fmt.Errorf("articles[%d]: url must not be empty", i)
		}
		if _, err := url.ParseRequestURI(strings.TrimSpace(article.URL)); err != nil {
			return fmt.Errorf("articles[%d]: url is not a valid URI: %w", i, err)
		}
		if strings.TrimSpace(article.Title) == "" {
			return fmt.Errorf("articles[%d]: title must not be empty", i)
		}
		if strings.TrimSpace(article.SourceName) == "" {
			return fmt.Errorf("articles[%d]: source_name must not be empty", i)
		}
		if article.PublishedAt != nil {
			if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*article.PublishedAt)); err != nil {
				return fmt.Errorf("articles[%d]: published_at must be RFC3339: %w", i, err)
			}
		}
	}

	return nil
}
