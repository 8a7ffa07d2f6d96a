package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mehanizm/airtable"
)

// airtableStore creates records through the Airtable REST API. The client call is
// not context-aware; the HTTP client timeout bounds it instead.
type airtableStore struct {
	client *airtable.Client
}

func newAirtableStore(config Config) *airtableStore {
	client := airtable.NewClient(config.AirtableAPIToken)
	client.SetCustomClient(&http.Client{Timeout: config.HTTPTimeout})
	return &airtableStore{client: client}
}

func (s *airtableStore) CreateRecord(_ context.Context, baseID, tableID string, fields map[string]interface{}) (string, error) {
	table := s.client.GetTable(baseID, tableID)
	created, err := table.AddRecords(&airtable.Records{
		Records: []*airtable.Record{{Fields: fields}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create record in %s/%s: %w", baseID, tableID, err)
	}
	if created == nil || len(created.Records) == 0 || created.Records[0].ID == "" {
		return "", errors.New("airtable returned no record")
	}
	id := created.Records[0].ID
	Info("Airtable operation successful: create_record record_id=%s", id)
	return id, nil
}
