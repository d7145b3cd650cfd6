package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogServer(t *testing.T, data []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
}

func catalogEntry(id, name string, params []string, promptPrice, completionPrice string) map[string]any {
	return map[string]any{
		"id":                   id,
		"name":                 name,
		"context_length":       200000,
		"supported_parameters": params,
		"pricing": map[string]any{
			"prompt":     promptPrice,
			"completion": completionPrice,
		},
	}
}

func TestListModels(t *testing.T) {
	t.Run("filters to json_schema support", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("vendor/schema-model", "Schema Model", []string{"json_schema", "tools"}, "0.000003", "0.000015"),
			catalogEntry("vendor/plain-model", "Plain Model", []string{"tools"}, "0.000001", "0.000002"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.ListModels(context.Background())
		require.NoError(t, err)

		ids := make(map[string]bool)
		for _, m := range result {
			ids[m.ID] = true
		}
		assert.True(t, ids["vendor/schema-model"])
		assert.False(t, ids["vendor/plain-model"])
	})

	t.Run("pricing converted to USD per million tokens", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("vendor/schema-model", "Schema Model", []string{"json_schema"}, "0.000003", "0.000015"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.ListModels(context.Background())
		require.NoError(t, err)

		var found bool
		for _, m := range result {
			if m.ID == "vendor/schema-model" {
				found = true
				assert.Equal(t, 3.0, m.PricingPrompt)
				assert.Equal(t, 15.0, m.PricingCompletion)
			}
		}
		require.True(t, found)
	})

	t.Run("missing mandatory models synthesized", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("vendor/schema-model", "Schema Model", []string{"json_schema"}, "0.000003", "0.000015"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.ListModels(context.Background())
		require.NoError(t, err)

		byID := make(map[string]int)
		for i, m := range result {
			byID[m.ID] = i
		}
		for id := range mandatoryModels {
			idx, ok := byID[id]
			require.True(t, ok, "mandatory model %s missing", id)
			assert.Equal(t, 128000, result[idx].ContextLength)
			assert.NotEmpty(t, result[idx].Name)
			assert.Greater(t, result[idx].PricingCompletion, 0.0)
		}
	})

	t.Run("mandatory models kept even without json_schema flag", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("openai/gpt-oss-120b", "OpenAI: GPT-OSS 120B", []string{"tools"}, "0.00000004", "0.00000019"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.ListModels(context.Background())
		require.NoError(t, err)

		for _, m := range result {
			if m.ID == "openai/gpt-oss-120b" {
				// Catalog entry wins over the synthesized fallback.
				assert.Equal(t, "OpenAI: GPT-OSS 120B", m.Name)
				assert.Equal(t, 200000, m.ContextLength)
				return
			}
		}
		t.Fatal("gpt-oss-120b not listed")
	})

	t.Run("mandatory models sort first", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("vendor/aaa-model", "AAA Model", []string{"json_schema"}, "0.000001", "0.000002"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.ListModels(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, result)

		_, firstMandatory := mandatoryModels[result[0].ID]
		assert.True(t, firstMandatory, "expected a mandatory model first, got %s", result[0].ID)
		assert.Equal(t, "AAA Model", result[len(result)-1].Name)
	})
}

func TestSearchModels(t *testing.T) {
	t.Run("matches id and name case-insensitively", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("mistralai/mistral-large", "Mistral Large", nil, "0.000002", "0.000006"),
			catalogEntry("vendor/other", "Kitas Modelis", nil, "0.000001", "0.000001"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.SearchModels(context.Background(), "MISTRAL")
		require.NoError(t, err)

		require.Len(t, result, 1)
		assert.Equal(t, "mistralai/mistral-large", result[0].ID)
	})

	t.Run("no capability filter applied", func(t *testing.T) {
		server := catalogServer(t, []map[string]any{
			catalogEntry("vendor/plain", "Plain", []string{"tools"}, "0", "0"),
		})
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.SearchModels(context.Background(), "plain")
		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("capped at 50 results sorted by name", func(t *testing.T) {
		var data []map[string]any
		for i := 0; i < 70; i++ {
			data = append(data, catalogEntry(
				fmt.Sprintf("vendor/model-%02d", i),
				fmt.Sprintf("Model %02d", 69-i),
				nil, "0.000001", "0.000001"))
		}
		server := catalogServer(t, data)
		defer server.Close()

		c := newTestClient(t, server.URL)
		result, err := c.SearchModels(context.Background(), "model")
		require.NoError(t, err)

		require.Len(t, result, 50)
		assert.Equal(t, "Model 00", result[0].Name)
		for i := 1; i < len(result); i++ {
			assert.LessOrEqual(t, result[i-1].Name, result[i].Name)
		}
	})
}
