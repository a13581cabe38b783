package images

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

const (
	defaultBaseURL = "https://api.pexels.com/v1"
	defaultTimeout = 15 * time.Second

	// Pexels allows 200 requests per hour on the free tier; stay well under
	requestsPerMinute = 3
)

// PexelsProvider fetches stock photos from the Pexels API. Image fetching is
// decorative: every failure path returns an empty slice so a Pexels outage
// never fails a generation job.
type PexelsProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewPexelsProvider creates a Pexels image provider. An empty API key yields
// a provider that always returns no images.
func NewPexelsProvider(config *common.ImagesConfig, logger arbor.ILogger) *PexelsProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &PexelsProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), requestsPerMinute),
		logger:  logger,
	}
}

var _ interfaces.ImageProvider = (*PexelsProvider)(nil)

type pexelsSearchResponse struct {
	Photos []struct {
		Alt             string `json:"alt"`
		Photographer    string `json:"photographer"`
		PhotographerURL string `json:"photographer_url"`
		Src             struct {
			Large string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// FetchImages returns up to k images matching the scenario keywords. The
// query prefers the first keyword and falls back to the persona name.
func (p *PexelsProvider) FetchImages(ctx context.Context, keywords []string, personaName string, k int) []models.ImageRef {
	if p.apiKey == "" || k <= 0 {
		return nil
	}

	query := personaName
	if len(keywords) > 0 && strings.TrimSpace(keywords[0]) != "" {
		query = keywords[0]
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("Image fetch cancelled waiting for rate limiter")
		return nil
	}

	endpoint := fmt.Sprintf("%s/search?query=%s&per_page=%d", p.baseURL, url.QueryEscape(query), k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to build Pexels request")
		return nil
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Str("query", query).Msg("Pexels request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().
			Int("status", resp.StatusCode).
			Str("query", query).
			Msg("Pexels returned non-OK status")
		return nil
	}

	var body pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to decode Pexels response")
		return nil
	}

	refs := make([]models.ImageRef, 0, len(body.Photos))
	for _, photo := range body.Photos {
		if photo.Src.Large == "" {
			continue
		}
		alt := photo.Alt
		if alt == "" {
			alt = query
		}
		refs = append(refs, models.ImageRef{
			URL:             photo.Src.Large,
			Alt:             alt,
			Photographer:    photo.Photographer,
			PhotographerURL: photo.PhotographerURL,
		})
		if len(refs) >= k {
			break
		}
	}

	p.logger.Debug().
		Str("query", query).
		Int("count", len(refs)).
		Msg("Fetched images")

	return refs
}
