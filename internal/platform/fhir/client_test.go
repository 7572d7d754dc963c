package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func writeFHIR(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bundleOf(t *testing.T, resources ...interface{}) Bundle {
	t.Helper()
	b := Bundle{ResourceType: "Bundle", Type: "searchset"}
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		b.Entry = append(b.Entry, BundleEntry{Resource: raw})
	}
	total := len(b.Entry)
	b.Total = &total
	return b
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	if c.baseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", c.baseURL)
	}
	if c.httpClient.Timeout == 0 {
		t.Error("expected a non-zero timeout")
	}

	c = NewClient(Config{BaseURL: "http://fhir.local/r4/"})
	if c.baseURL != "http://fhir.local/r4" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
}

func TestClient_GetPatient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Patient/p-1" {
			writeFHIR(w, http.StatusNotFound, OperationOutcome{ResourceType: "OperationOutcome"})
			return
		}
		if r.Header.Get("Accept") != ContentType {
			t.Errorf("expected Accept %q, got %q", ContentType, r.Header.Get("Accept"))
		}
		writeFHIR(w, http.StatusOK, NewPatient("Jane Q Public", "female", "1980-01-02"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	p, err := c.GetPatient(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DisplayName() != "Jane Q Public" {
		t.Errorf("unexpected name %q", p.DisplayName())
	}

	_, err = c.GetPatient(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_SearchPatients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "John Doe" || r.URL.Query().Get("birthdate") != "1974-12-25" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		writeFHIR(w, http.StatusOK, bundleOf(t, MockPatient("p-9"), map[string]string{"resourceType": "OperationOutcome"}))
	}))
	defer srv.Close()

	got, err := NewClient(Config{BaseURL: srv.URL}).SearchPatients(context.Background(), "John Doe", "1974-12-25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p-9" {
		t.Fatalf("expected one patient p-9, got %+v", got)
	}
}

func TestClient_CreatePatient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Patient" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != ContentType {
			t.Errorf("expected Content-Type %q", ContentType)
		}
		var p Patient
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		p.ID = "new-1"
		writeFHIR(w, http.StatusCreated, p)
	}))
	defer srv.Close()

	created, err := NewClient(Config{BaseURL: srv.URL}).CreatePatient(context.Background(), &Patient{Gender: "other"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "new-1" || created.ResourceType != "Patient" {
		t.Errorf("unexpected created patient %+v", created)
	}
}

func TestClient_ListConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Condition" || r.URL.Query().Get("patient") != "p-1" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		writeFHIR(w, http.StatusOK, bundleOf(t, MockConditions("p-1")[0]))
	}))
	defer srv.Close()

	conds, err := NewClient(Config{BaseURL: srv.URL}).ListConditions(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conds) != 1 || conds[0].Code.FirstCode() != "44054006" {
		t.Fatalf("unexpected conditions %+v", conds)
	}
}

func TestClient_ErrorIncludesOperationOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFHIR(w, http.StatusBadRequest, OperationOutcome{
			ResourceType: "OperationOutcome",
			Issue:        []Issue{{Severity: "error", Code: "invalid", Diagnostics: "bad birthdate"}},
		})
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).SearchPatients(context.Background(), "x", "not-a-date")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "bad birthdate") {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestCodeableConcept_Label(t *testing.T) {
	var nilCC *CodeableConcept
	if nilCC.Label() != "" || nilCC.FirstCode() != "" {
		t.Error("nil concept must yield empty strings")
	}
	cc := &CodeableConcept{Coding: []Coding{{Code: "24484000", Display: "Severe"}}}
	if cc.Label() != "Severe" {
		t.Errorf("expected display fallback, got %q", cc.Label())
	}
}

func TestNewPatient_SplitsName(t *testing.T) {
	p := NewPatient("Mary Ann Smith", "female", "1990-05-01")
	if p.Name[0].Family != "Smith" || len(p.Name[0].Given) != 2 {
		t.Errorf("unexpected name split %+v", p.Name[0])
	}
	if NewPatient("Cher", "female", "").Name[0].Family != "Cher" {
		t.Error("single word should become the family name")
	}
}
