package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/gorilla/mux"
)

func newMappingsRouter(store *mockMappingStore) *mux.Router {
	settings := models.DefaultSettings()
	settings.ProjectMappings = []models.ProjectMapping{
		{Tag: "#work", ProjectID: "p-work"},
		{Tag: "#home", ProjectID: "p-home"},
	}
	r := mux.NewRouter()
	NewMappingsHandler(staticSettings(settings), store, nil).RegisterRoutes(r.PathPrefix("/api/v1/mappings").Subrouter())
	return r
}

func TestMappingsHandler_List(t *testing.T) {
	t.Parallel()

	store := &mockMappingStore{mappings: []models.ProjectMapping{
		{Tag: "#home", ProjectID: "p-house"},
		{Tag: "#errands", ProjectID: "p-errands"},
	}}
	w := httptest.NewRecorder()
	newMappingsRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mappings", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got []MappingView
	decodeData(t, w.Body.Bytes(), &got)
	want := []MappingView{
		{ProjectMapping: models.ProjectMapping{Tag: "#work", ProjectID: "p-work"}, Source: MappingSourceConfig},
		{ProjectMapping: models.ProjectMapping{Tag: "#home", ProjectID: "p-house"}, Source: MappingSourceStored},
		{ProjectMapping: models.ProjectMapping{Tag: "#errands", ProjectID: "p-errands"}, Source: MappingSourceStored},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mappings = %+v, want %+v", got, want)
	}
}

func TestMappingsHandler_ListStoreError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newMappingsRouter(&mockMappingStore{err: errors.New("db down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mappings", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestMappingsHandler_Put(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantTag    string
	}{
		{name: "bare tag", path: "/api/v1/mappings/Errands", body: `{"project_id": "p1", "project_name": "Errands"}`, wantStatus: http.StatusOK, wantTag: "#errands"},
		{name: "escaped hash", path: "/api/v1/mappings/%23work", body: `{"project_id": "p2"}`, wantStatus: http.StatusOK, wantTag: "#work"},
		{name: "missing project", path: "/api/v1/mappings/work", body: `{"project_name": "Work"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid tag", path: "/api/v1/mappings/no%20spaces", body: `{"project_id": "p3"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &mockMappingStore{}
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			newMappingsRouter(store).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if len(store.mappings) != 0 {
					t.Errorf("rejected request stored %+v", store.mappings)
				}
				return
			}
			var got MappingView
			decodeData(t, w.Body.Bytes(), &got)
			if got.Tag != tt.wantTag || got.Source != MappingSourceStored {
				t.Errorf("view = %+v, want tag %s", got, tt.wantTag)
			}
			if len(store.mappings) != 1 || store.mappings[0].Tag != tt.wantTag {
				t.Errorf("stored = %+v", store.mappings)
			}
		})
	}
}

func TestMappingsHandler_Delete(t *testing.T) {
	t.Parallel()

	store := &mockMappingStore{mappings: []models.ProjectMapping{{Tag: "#errands", ProjectID: "p1"}}}
	r := newMappingsRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/mappings/errands", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(store.mappings) != 0 {
		t.Errorf("mapping not deleted: %+v", store.mappings)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/mappings/errands", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}
