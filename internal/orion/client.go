// Package orion writes Prediction entities to an Orion-LD context broker.
package orion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nekazari/intelligence/pkg/models"
)

// Sentinel errors for Orion-LD client failures.
var (
	ErrOrionUnreachable = errors.New("orion unreachable")
	ErrOrionRejected    = errors.New("orion rejected request")
	ErrOrionTimeout     = errors.New("orion request timeout")
)

// Client is the interface for publishing predictions to the context broker.
type Client interface {
	// CreateOrUpdatePrediction creates the entity, falling back to an
	// attribute update when it already exists. Returns the entity id.
	CreateOrUpdatePrediction(ctx context.Context, p Prediction) (string, error)
}

// Prediction is the payload published as an NGSI-LD Prediction entity.
type Prediction struct {
	EntityID    string
	TenantID    string
	RefEntityID string
	Attribute   string
	Predictions []models.PredictionPoint
	Model       string
	Confidence  float64
}

// PredictionEntityID derives the deterministic entity id for a prediction:
// urn:ngsi-ld:Prediction:<tenant>:<ref-entity-suffix>-<attribute>.
func PredictionEntityID(tenantID, refEntityID, attribute string) string {
	suffix := refEntityID
	if i := strings.LastIndex(refEntityID, ":"); i >= 0 {
		suffix = refEntityID[i+1:]
	}
	return fmt.Sprintf("urn:ngsi-ld:Prediction:%s:%s-%s", tenantID, suffix, attribute)
}

// HTTPClient implements Client using Orion-LD's NGSI-LD HTTP API.
type HTTPClient struct {
	baseURL    string
	contextURL string
	client     *http.Client
}

// NewHTTPClient creates a new Orion-LD HTTP client.
func NewHTTPClient(baseURL, contextURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		contextURL: contextURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateOrUpdatePrediction(ctx context.Context, p Prediction) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	entity := map[string]any{
		"id":   p.EntityID,
		"type": "Prediction",
		"refEntity": map[string]any{
			"type":   "Relationship",
			"object": p.RefEntityID,
		},
		"predictedAttribute": property(p.Attribute),
		"predictions":        property(p.Predictions),
		"model":              property(p.Model),
		"confidence":         confidenceProperty(p.Confidence),
		"createdAt":          dateTimeProperty(now),
		"updatedAt":          dateTimeProperty(now),
	}
	if c.contextURL != "" {
		entity["@context"] = []string{c.contextURL}
	}

	body, err := json.Marshal(entity)
	if err != nil {
		return "", fmt.Errorf("encoding entity: %w", err)
	}

	u := fmt.Sprintf("%s/ngsi-ld/v1/entities", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, p.TenantID)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		return p.EntityID, nil
	case http.StatusConflict:
		// Entity already exists, update its mutable attributes in place.
		return c.updatePrediction(ctx, p, now)
	default:
		return "", rejectedError(resp)
	}
}

// updatePrediction patches predictions, confidence, and updatedAt on an
// existing entity.
func (c *HTTPClient) updatePrediction(ctx context.Context, p Prediction, now string) (string, error) {
	payload := map[string]any{
		"predictions": property(p.Predictions),
		"confidence":  confidenceProperty(p.Confidence),
		"updatedAt":   dateTimeProperty(now),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding update: %w", err)
	}

	u := fmt.Sprintf("%s/ngsi-ld/v1/entities/%s/attrs", c.baseURL, url.PathEscape(p.EntityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, p.TenantID)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", rejectedError(resp)
	}
	return p.EntityID, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, tenantID string) {
	req.Header.Set("Fiware-Service", tenantID)
	req.Header.Set("Fiware-ServicePath", "/")
	req.Header.Set("Content-Type", "application/ld+json")
	req.Header.Set("Accept", "application/ld+json")
	if c.contextURL != "" {
		req.Header.Set("Link",
			fmt.Sprintf(`<%s>; rel="http://www.w3.org/ns/json-ld#context"; type="application/ld+json"`, c.contextURL))
	}
}

func property(value any) map[string]any {
	return map[string]any{"type": "Property", "value": value}
}

func confidenceProperty(confidence float64) map[string]any {
	// C62 is the UN/CEFACT dimensionless unit for the 0-1 scale.
	return map[string]any{"type": "Property", "value": confidence, "unitCode": "C62"}
}

func dateTimeProperty(ts string) map[string]any {
	return map[string]any{
		"type":  "Property",
		"value": map[string]any{"@type": "DateTime", "@value": ts},
	}
}

func rejectedError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("%w: status %d: %s", ErrOrionRejected, resp.StatusCode, snippet)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrOrionTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrOrionTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrOrionUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrOrionUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
