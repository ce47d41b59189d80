package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"potion_master/internal/bus"
	"potion_master/internal/models"
	"potion_master/internal/service"
)

func postJSON(r http.Handler, url, body string, hdr http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 9", models.ErrInvalidChannel), http.StatusBadRequest},
		{fmt.Errorf("%w: rum", models.ErrUnmappedIngredient), http.StatusBadRequest},
		{models.ErrEmptyRecipe, http.StatusBadRequest},
		{models.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrInvalidTimeRange, http.StatusBadRequest},
		{models.ErrAlreadyPreparing, http.StatusConflict},
		{models.ErrHardwareUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("open: %w", bus.ErrBusUnavailable), http.StatusServiceUnavailable},
		{models.ErrTareFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPrepareCocktail(t *testing.T) {
	prep := &mockPreparation{sessionID: "sess-1"}
	r := newTestRouter(&service.Service{Preparation: prep})

	w := postJSON(r, "/api/v1/cocktails/prepare",
		`{"cocktailId":"vodka_tonic","ingredients":{"vodka":40,"soda":120},"manualIngredient":"lime"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("prepare status=%d body=%s", w.Code, w.Body.String())
	}
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["sessionId"] != "sess-1" || out["status"] != "started" {
		t.Fatalf("unexpected body: %v", out)
	}

	got := prep.lastRecipe
	if got.CocktailID != "vodka_tonic" || got.ManualIngredient != "lime" || len(got.Ingredients) != 2 {
		t.Fatalf("recipe not decoded: %+v", got)
	}
	if got.Ingredients[0].Ingredient != "vodka" || got.Ingredients[1].Ingredient != "soda" {
		t.Fatalf("ingredient order lost: %+v", got.Ingredients)
	}
}

func TestPrepareCocktail_ArrayIngredients(t *testing.T) {
	prep := &mockPreparation{sessionID: "sess-2"}
	r := newTestRouter(&service.Service{Preparation: prep})

	w := postJSON(r, "/api/v1/cocktails/prepare",
		`{"cocktailId":"screwdriver","ingredients":[{"ingredient":"vodka","amount":50},{"ingredient":"orange_juice","amount":100}]}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("prepare status=%d body=%s", w.Code, w.Body.String())
	}

	got := prep.lastRecipe
	if len(got.Ingredients) != 2 || got.Ingredients[0].Ingredient != "vodka" || got.Ingredients[1].Amount != 100 {
		t.Fatalf("recipe not decoded: %+v", got)
	}
}

func TestPrepareCocktail_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{"ingredients":`, nil, http.StatusBadRequest},
		{"empty recipe", `{"ingredients":[]}`, models.ErrEmptyRecipe, http.StatusBadRequest},
		{"unmapped", `{"ingredients":{"rum":10}}`, fmt.Errorf("%w: rum", models.ErrUnmappedIngredient), http.StatusBadRequest},
		{"busy", `{"ingredients":{"vodka":10}}`, models.ErrAlreadyPreparing, http.StatusConflict},
		{"no hardware", `{"ingredients":{"vodka":10}}`, models.ErrHardwareUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&service.Service{Preparation: &mockPreparation{startErr: tc.err}})
			w := postJSON(r, "/api/v1/cocktails/prepare", tc.body, nil)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.want, w.Body.String())
			}
			var out map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out["error"] == "" {
				t.Fatalf("missing error message: %s", w.Body.String())
			}
		})
	}
}

func TestStopAndCurrent(t *testing.T) {
	prep := &mockPreparation{}
	r := newTestRouter(&service.Service{Preparation: prep})

	if w := postJSON(r, "/api/v1/cocktails/stop", "", nil); w.Code != http.StatusOK || prep.stopCalls != 1 {
		t.Fatalf("stop status=%d calls=%d", w.Code, prep.stopCalls)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cocktails/current", nil))
	var idle struct {
		Preparing   bool                `json:"preparing"`
		Preparation *models.Preparation `json:"preparation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &idle)
	if idle.Preparing || idle.Preparation != nil {
		t.Fatalf("expected idle, got %s", w.Body.String())
	}

	prep.preparing = true
	prep.current = models.Preparation{SessionID: "s", State: models.PrepPouring, CurrentIngredient: "vodka"}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cocktails/current", nil))
	var busy struct {
		Preparing   bool               `json:"preparing"`
		Preparation models.Preparation `json:"preparation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &busy)
	if !busy.Preparing || busy.Preparation.CurrentIngredient != "vodka" {
		t.Fatalf("unexpected current: %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	hw := &mockHardware{status: models.HardwareStatus{Connected: true}}
	r := newTestRouter(&service.Service{Hardware: hw})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	var out struct {
		Status   string                `json:"status"`
		Hardware models.HardwareStatus `json:"hardware"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Status != "ok" || !out.Hardware.Connected {
		t.Fatalf("unexpected health: %s", w.Body.String())
	}
}
