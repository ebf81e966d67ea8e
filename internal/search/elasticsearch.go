package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/config"
	"example.com/distribo/services/recouvrement/internal/models"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

// IndexInvoice indexes an invoice document keyed by invoice number
func (c *ElasticClient) IndexInvoice(ctx context.Context, inv *models.Invoice, depotName string) error {
	doc := map[string]interface{}{
		"id":              inv.ID.String(),
		"number":          inv.Number,
		"account_number":  inv.AccountNumber,
		"delivery_status": inv.DeliveryStatus,
		"payment_status":  inv.PaymentStatus,
		"total_amount":    inv.TotalAmount.String(),
		"is_urgent":       inv.IsUrgent,
		"created_at":      inv.CreatedAt,
		"delivered_at":    inv.DeliveredAt,
		"depot_name":      depotName,
	}
	if inv.DepotID != nil {
		doc["depot_id"] = inv.DepotID.String()
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal invoice document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, c.config.Index),
		DocumentID: inv.Number,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Debug().Str("number", inv.Number).Msg("invoice indexed")
	return nil
}

// SearchInvoiceNumbers runs a free-text query over indexed invoices and
// returns the matching invoice numbers. Callers hydrate the rows from the
// database and apply the visibility scope there.
func (c *ElasticClient) SearchInvoiceNumbers(ctx context.Context, text string, size int) ([]string, error) {
	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"type":   "phrase_prefix",
				"fields": []string{"number", "account_number", "depot_name"},
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{config.FormatIndex(c.config, c.config.Index)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Number string `json:"number"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	numbers := make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		if hit.Source.Number != "" {
			numbers = append(numbers, hit.Source.Number)
		}
	}
	return numbers, nil
}
