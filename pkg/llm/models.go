package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tenderlens/tenderlens/pkg/models"
)

// mandatoryModels always appear in the structured-output list, even
// when the provider catalog omits them or their capability flags lag.
var mandatoryModels = map[string]struct{}{
	"moonshotai/kimi-k2.5":          {},
	"z-ai/glm-5":                    {},
	"google/gemini-3-flash-preview": {},
	"openai/gpt-oss-120b":           {},
}

var mandatoryNames = map[string]string{
	"moonshotai/kimi-k2.5":          "Kimi 2.5",
	"z-ai/glm-5":                    "GLM-5",
	"google/gemini-3-flash-preview": "Gemini 3 Flash",
	"openai/gpt-oss-120b":           "GPT-OSS 120",
}

var mandatoryPricing = map[string][2]float64{
	"moonshotai/kimi-k2.5":          {0.45, 2.25},
	"z-ai/glm-5":                    {0.80, 2.56},
	"google/gemini-3-flash-preview": {0.50, 3.00},
	"openai/gpt-oss-120b":           {0.04, 0.19},
}

type catalogModel struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	ContextLength       int      `json:"context_length"`
	SupportedParameters []string `json:"supported_parameters"`
	Pricing             struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

type catalogResponse struct {
	Data []catalogModel `json:"data"`
}

// ListModels fetches the provider catalog filtered to models that can
// enforce json_schema output, plus the mandatory set. Mandatory models
// sort first, the rest by name.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	catalog, err := c.fetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.ModelInfo, 0, len(catalog))
	seen := make(map[string]struct{})
	for _, m := range catalog {
		_, mandatory := mandatoryModels[m.ID]
		if !supportsJSONSchema(m.SupportedParameters) && !mandatory {
			continue
		}
		result = append(result, toModelInfo(m))
		seen[m.ID] = struct{}{}
	}

	// Backfill mandatory models absent from the catalog.
	for id := range mandatoryModels {
		if _, ok := seen[id]; ok {
			continue
		}
		pricing := mandatoryPricing[id]
		result = append(result, models.ModelInfo{
			ID:                id,
			Name:              mandatoryNames[id],
			ContextLength:     128000,
			PricingPrompt:     pricing[0],
			PricingCompletion: pricing[1],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		_, iMandatory := mandatoryModels[result[i].ID]
		_, jMandatory := mandatoryModels[result[j].ID]
		if iMandatory != jMandatory {
			return iMandatory
		}
		return result[i].Name < result[j].Name
	})

	c.logger.Debug("Listed structured-output models", "count", len(result))
	return result, nil
}

// SearchModels fetches the whole catalog without the capability filter
// and matches the query against model IDs and names. Returns at most
// 50 models sorted by name.
func (c *Client) SearchModels(ctx context.Context, query string) ([]models.ModelInfo, error) {
	catalog, err := c.fetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	result := make([]models.ModelInfo, 0, len(catalog))
	for _, m := range catalog {
		if q != "" &&
			!strings.Contains(strings.ToLower(m.ID), q) &&
			!strings.Contains(strings.ToLower(m.Name), q) {
			continue
		}
		result = append(result, toModelInfo(m))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if len(result) > 50 {
		result = result[:50]
	}
	return result, nil
}

func (c *Client) fetchCatalog(ctx context.Context) ([]catalogModel, error) {
	raw, err := c.requestWithRetry(ctx, "GET", "/models", nil)
	if err != nil {
		return nil, err
	}
	var resp catalogResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}
	return resp.Data, nil
}

func supportsJSONSchema(params []string) bool {
	for _, p := range params {
		if p == "json_schema" {
			return true
		}
	}
	return false
}

func toModelInfo(m catalogModel) models.ModelInfo {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	return models.ModelInfo{
		ID:                m.ID,
		Name:              name,
		ContextLength:     m.ContextLength,
		PricingPrompt:     perMillion(m.Pricing.Prompt),
		PricingCompletion: perMillion(m.Pricing.Completion),
	}
}

// perMillion converts the catalog's per-token price string to USD per
// million tokens, rounded to cents.
func perMillion(perToken string) float64 {
	price, err := strconv.ParseFloat(perToken, 64)
	if err != nil {
		return 0
	}
	return math.Round(price*1_000_000*100) / 100
}
