package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultBaseURL is the public SMART sandbox.
const DefaultBaseURL = "https://r4.smarthealthit.org"

var fhirTracer = otel.Tracer("ertriage.internal.platform.fhir")

// ErrNotFound is returned when the server answers 404 for a read.
var ErrNotFound = errors.New("fhir: resource not found")

// Config holds configuration for the FHIR client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client reads and writes the Patient and Condition resources used at triage.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetPatient reads Patient/{id}.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	ctx, span := fhirTracer.Start(ctx, "fhir.get_patient")
	defer span.End()
	span.SetAttributes(attribute.String("fhir.patient_id", id))

	var p Patient
	if err := c.do(ctx, http.MethodGet, "/Patient/"+url.PathEscape(id), nil, &p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &p, nil
}

// SearchPatients searches by name and birth date (YYYY-MM-DD). Either may be
// empty.
func (c *Client) SearchPatients(ctx context.Context, name, birthDate string) ([]*Patient, error) {
	ctx, span := fhirTracer.Start(ctx, "fhir.search_patients")
	defer span.End()

	params := url.Values{}
	if name != "" {
		params.Set("name", name)
	}
	if birthDate != "" {
		params.Set("birthdate", birthDate)
	}

	var bundle Bundle
	if err := c.do(ctx, http.MethodGet, "/Patient?"+params.Encode(), nil, &bundle); err != nil {
		span.RecordError(err)
		return nil, err
	}

	patients := make([]*Patient, 0, len(bundle.Entry))
	for _, e := range bundle.Entry {
		var p Patient
		if err := json.Unmarshal(e.Resource, &p); err != nil {
			return nil, fmt.Errorf("fhir: failed to decode patient entry: %w", err)
		}
		if p.ResourceType == "Patient" {
			patients = append(patients, &p)
		}
	}
	return patients, nil
}

// CreatePatient posts a new Patient and returns the server's copy.
func (c *Client) CreatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	ctx, span := fhirTracer.Start(ctx, "fhir.create_patient")
	defer span.End()

	if p.ResourceType == "" {
		p.ResourceType = "Patient"
	}
	var created Patient
	if err := c.do(ctx, http.MethodPost, "/Patient", p, &created); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &created, nil
}

// ListConditions returns every Condition whose subject is the patient.
func (c *Client) ListConditions(ctx context.Context, patientID string) ([]*Condition, error) {
	ctx, span := fhirTracer.Start(ctx, "fhir.list_conditions")
	defer span.End()
	span.SetAttributes(attribute.String("fhir.patient_id", patientID))

	params := url.Values{}
	params.Set("patient", patientID)

	var bundle Bundle
	if err := c.do(ctx, http.MethodGet, "/Condition?"+params.Encode(), nil, &bundle); err != nil {
		span.RecordError(err)
		return nil, err
	}

	conds := make([]*Condition, 0, len(bundle.Entry))
	for _, e := range bundle.Entry {
		var cond Condition
		if err := json.Unmarshal(e.Resource, &cond); err != nil {
			return nil, fmt.Errorf("fhir: failed to decode condition entry: %w", err)
		}
		if cond.ResourceType == "Condition" {
			conds = append(conds, &cond)
		}
	}
	span.SetAttributes(attribute.Int("fhir.condition_count", len(conds)))
	return conds, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("fhir: failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("fhir: failed to create request: %w", err)
	}
	req.Header.Set("Accept", ContentType)
	if in != nil {
		req.Header.Set("Content-Type", ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fhir: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var oo OperationOutcome
		if json.Unmarshal(raw, &oo) == nil && oo.ResourceType == "OperationOutcome" && len(oo.Issue) > 0 {
			return fmt.Errorf("fhir: API error (status %d): %s", resp.StatusCode, oo.summary())
		}
		return fmt.Errorf("fhir: API error (status %d): %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fhir: failed to decode response: %w", err)
	}
	return nil
}
