package handler

import (
	"net/http"

	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/plugin"
)

// PluginLister enumerates registered analysis plugins.
type PluginLister interface {
	List() []plugin.Info
}

// NewListPluginsHandler returns an http.HandlerFunc for GET /api/intelligence/plugins.
func NewListPluginsHandler(registry PluginLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, map[string]any{
			"plugins": registry.List(),
			"default": plugin.DefaultName,
		})
	}
}
