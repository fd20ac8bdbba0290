package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// HTTPRunner executes graph queries over the Neo4j HTTP transaction API.
// It keeps the graph database out of the dependency surface: the repository
// only sees the Runner interface.
type HTTPRunner struct {
	endpoint string
	username string
	password string
	client   *http.Client
	log      *logrus.Logger
}

// NewHTTPRunner creates a runner against a Neo4j HTTP endpoint, e.g.
// http://localhost:7474. Queries run against the default database.
func NewHTTPRunner(baseURL, username, password string, timeout time.Duration, log *logrus.Logger) *HTTPRunner {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRunner{
		endpoint: strings.TrimRight(baseURL, "/") + "/db/neo4j/tx/commit",
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []interface{} `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExecuteRead runs a read query and maps each row to a column-keyed map.
func (r *HTTPRunner) ExecuteRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	resp, err := r.commit(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	result := resp.Results[0]
	rows := make([]map[string]interface{}, 0, len(result.Data))
	for _, d := range result.Data {
		row := make(map[string]interface{}, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(d.Row) {
				row[col] = d.Row[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExecuteWrite runs a write query, discarding any returned rows.
func (r *HTTPRunner) ExecuteWrite(ctx context.Context, query string, params map[string]interface{}) error {
	_, err := r.commit(ctx, query, params)
	return err
}

func (r *HTTPRunner) commit(ctx context.Context, query string, params map[string]interface{}) (*txResponse, error) {
	payload, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: query, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.username != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRepoUnavailable, "graph database unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.ErrRepoUnavailable,
			fmt.Sprintf("graph database returned status %d", resp.StatusCode))
	}

	var decoded txResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "malformed graph response", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, domain.NewError(domain.ErrRepoUnavailable,
			fmt.Sprintf("graph query failed: %s: %s", decoded.Errors[0].Code, decoded.Errors[0].Message))
	}
	return &decoded, nil
}
