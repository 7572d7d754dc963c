package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("/?limit=25&offset=10")
	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Bounds(t *testing.T) {
	tests := []struct {
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"/?limit=5000", MaxLimit, 0},
		{"/?limit=-3", DefaultLimit, 0},
		{"/?limit=abc&offset=xyz", DefaultLimit, 0},
		{"/?offset=-10", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.target)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%s: expected (%d,%d), got (%d,%d)", tt.target, tt.wantLimit, tt.wantOffset, p.Limit, p.Offset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 10, Params{Limit: 2, Offset: 0})
	if !resp.HasMore {
		t.Error("expected has_more when more rows remain")
	}
	if resp.Total != 10 || resp.Limit != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}

	last := NewResponse([]string{"j"}, 10, Params{Limit: 2, Offset: 9})
	if last.HasMore {
		t.Error("expected no more rows on the last page")
	}
}
