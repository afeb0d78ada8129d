package handler

import (
	"net/http"

	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/metadata"
)

// MetadataHandler serves display metadata for operation and error kinds.
type MetadataHandler struct {
	catalog *metadata.Catalog
}

// NewMetadataHandler creates a new metadata handler.
func NewMetadataHandler(catalog *metadata.Catalog) *MetadataHandler {
	return &MetadataHandler{catalog: catalog}
}

// MetadataEntry is the metadata of one key.
type MetadataEntry struct {
	Key      string             `json:"key"`
	Metadata *metadata.Metadata `json:"metadata,omitempty"`
	Missing  bool               `json:"metadata_missing,omitempty"`
}

// MetadataResponse lists the metadata of every operation and error kind.
type MetadataResponse struct {
	Operations []MetadataEntry `json:"operations"`
	Errors     []MetadataEntry `json:"errors"`
}

func entry(key string, lookup func(string) (metadata.Metadata, error)) MetadataEntry {
	m, err := lookup(key)
	if err != nil {
		return MetadataEntry{Key: key, Missing: true}
	}
	return MetadataEntry{Key: key, Metadata: &m}
}

// Get handles GET /api/v1/metadata.
func (h *MetadataHandler) Get(w http.ResponseWriter, _ *http.Request) {
	resp := MetadataResponse{}
	for _, k := range bulkop.AllKinds() {
		resp.Operations = append(resp.Operations, entry(k.String(), h.catalog.Operation))
	}
	for _, k := range bulkop.AllErrorKinds() {
		resp.Errors = append(resp.Errors, entry(k.String(), h.catalog.Error))
	}
	writeJSON(w, http.StatusOK, resp)
}
