package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// SearchIndex mirrors persisted entries into Elasticsearch for full-text
// search over programs and comments. Mirroring is best effort: index
// failures are logged and never counted against a run.
type SearchIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewSearchIndex creates an Elasticsearch mirror
func NewSearchIndex(addresses []string, indexName string) (*SearchIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	return &SearchIndex{client: client, indexName: indexName}, nil
}

// BulkIndex indexes entries, keyed by url so mirroring stays idempotent
func (i *SearchIndex) BulkIndex(ctx context.Context, entries []domain.CleanedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		meta := map[string]any{
			"index": map[string]any{
				"_index": i.indexName,
				"_id":    entry.URL,
			},
		}
		metaBytes, _ := json.Marshal(meta)
		buf.Write(metaBytes)
		buf.WriteByte('\n')

		docBytes, err := json.Marshal(entry)
		if err != nil {
			log.WithFields(log.Fields{"url": entry.URL, "error": err}).Warn("marshal entry")
			continue
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := i.client.Bulk(bytes.NewReader(buf.Bytes()), i.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.Status())
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkRes.Errors {
		return fmt.Errorf("bulk response reported item errors")
	}
	return nil
}
