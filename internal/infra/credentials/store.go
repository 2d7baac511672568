package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"dreamframe/internal/infra"
	"dreamframe/internal/sqlinline"
)

const (
	ProviderRunway = "runway"
	ProviderVertex = "vertex"
)

// Store keeps provider secrets in the integration_tokens table so operators can
// rotate them without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) RunwayAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderRunway)
}

// VertexServiceAccount returns the stored service-account JSON, or nil when none was saved.
func (s *Store) VertexServiceAccount(ctx context.Context) ([]byte, error) {
	tok, err := s.Token(ctx, ProviderVertex)
	if err != nil || tok == "" {
		return nil, err
	}
	return []byte(tok), nil
}

// Token returns the stored secret for provider. A missing row is an empty token.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetRunwayAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("runway api key is required")
	}
	return s.upsert(ctx, ProviderRunway, key, map[string]any{"kind": "api_key"})
}

// SetVertexServiceAccount validates and stores a service-account JSON document.
func (s *Store) SetVertexServiceAccount(ctx context.Context, raw []byte) error {
	var sa struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		ProjectID   string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return errors.New("vertex service account must be valid JSON")
	}
	if sa.Type != "service_account" || sa.ClientEmail == "" {
		return errors.New("vertex credentials must be a service_account key")
	}
	return s.upsert(ctx, ProviderVertex, string(raw), map[string]any{
		"kind":         "service_account",
		"client_email": sa.ClientEmail,
		"project_id":   sa.ProjectID,
	})
}

// Delete removes the stored secret for provider.
func (s *Store) Delete(ctx context.Context, provider string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	return err
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
