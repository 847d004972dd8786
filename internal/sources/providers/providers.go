// Package providers builds the configured source adapters and groups them
// into the registries the aggregator and the refresh worker fan out to.
package providers

import (
	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/config"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
	"github.com/helixir/materials-aggregator/internal/sources/allevents"
	"github.com/helixir/materials-aggregator/internal/sources/arxiv"
	"github.com/helixir/materials-aggregator/internal/sources/core"
	"github.com/helixir/materials-aggregator/internal/sources/doaj"
	"github.com/helixir/materials-aggregator/internal/sources/newsapi"
	"github.com/helixir/materials-aggregator/internal/sources/pmc"
	"github.com/helixir/materials-aggregator/internal/sources/ticketmaster"
)

// Set holds one adapter per enabled provider. Disabled providers are nil.
type Set struct {
	ArXiv         *arxiv.Client
	PubMedCentral *pmc.Client
	DOAJ          *doaj.Client
	CORE          *core.Client
	NewsAPI       *newsapi.Client

	// Events is Ticketmaster with the AllEvents scraper as fallback, or
	// whichever of the two is enabled alone.
	Events sources.Adapter
}

// Build creates the adapters for every enabled provider. observer may be nil.
func Build(cfg config.SourcesConfig, agg config.AggregationConfig, observer sources.RequestObserver, logger zerolog.Logger) *Set {
	s := &Set{}

	if c := cfg.ArXiv; c.Enabled {
		s.ArXiv = arxiv.New(arxiv.Config{
			BaseURL:    c.BaseURL,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.Burst,
			MaxRetries: c.MaxRetries,
			MaxResults: c.MaxResults,
			Observer:   observer,
		})
		logger.Info().Msg("registered source: arXiv")
	}

	if c := cfg.PubMedCentral; c.Enabled {
		s.PubMedCentral = pmc.New(pmc.Config{
			BaseURL:           c.BaseURL,
			APIKey:            c.APIKey,
			Timeout:           c.Timeout,
			RateLimit:         c.RateLimit,
			BurstSize:         c.Burst,
			MaxRetries:        c.MaxRetries,
			MaxResults:        c.MaxResults,
			DetailConcurrency: agg.DetailConcurrency,
			Observer:          observer,
			Logger:            logger,
		})
		logger.Info().Msg("registered source: PubMed Central")
	}

	if c := cfg.DOAJ; c.Enabled {
		s.DOAJ = doaj.New(doaj.Config{
			BaseURL:    c.BaseURL,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.Burst,
			MaxRetries: c.MaxRetries,
			MaxResults: c.MaxResults,
			Observer:   observer,
		})
		logger.Info().Msg("registered source: DOAJ")
	}

	// CORE stays registered without a key; its fetches then report the
	// missing credential instead of silently disappearing.
	if c := cfg.CORE; c.Enabled {
		s.CORE = core.New(core.Config{
			BaseURL:    c.BaseURL,
			APIKey:     c.APIKey,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.Burst,
			MaxRetries: c.MaxRetries,
			MaxResults: c.MaxResults,
			Observer:   observer,
			Logger:     logger,
		})
		logger.Info().Bool("has_key", c.APIKey != "").Msg("registered source: CORE")
	}

	if c := cfg.NewsAPI; c.Enabled {
		s.NewsAPI = newsapi.New(newsapi.Config{
			BaseURL:    c.BaseURL,
			APIKey:     c.APIKey,
			Query:      agg.NewsQuery,
			PageSize:   c.MaxResults,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.Burst,
			MaxRetries: c.MaxRetries,
			Observer:   observer,
		})
		logger.Info().Bool("has_key", c.APIKey != "").Msg("registered source: NewsAPI")
	}

	s.Events = buildEvents(cfg, agg, observer, logger)
	return s
}

func buildEvents(cfg config.SourcesConfig, agg config.AggregationConfig, observer sources.RequestObserver, logger zerolog.Logger) sources.Adapter {
	var primary, secondary sources.Adapter

	if c := cfg.Ticketmaster; c.Enabled {
		primary = ticketmaster.New(ticketmaster.Config{
			BaseURL:     c.BaseURL,
			APIKey:      c.APIKey,
			City:        agg.City,
			CountryCode: agg.CountryCode,
			Size:        c.MaxResults,
			Timeout:     c.Timeout,
			RateLimit:   c.RateLimit,
			BurstSize:   c.Burst,
			MaxRetries:  c.MaxRetries,
			Observer:    observer,
		})
		logger.Info().Bool("has_key", c.APIKey != "").Msg("registered source: Ticketmaster")
	}

	if c := cfg.AllEvents; c.Enabled {
		secondary = allevents.New(allevents.Config{
			BaseURL:    c.BaseURL,
			City:       agg.City,
			Limit:      c.MaxResults,
			Timeout:    c.Timeout,
			MaxRetries: c.MaxRetries,
			Observer:   observer,
		})
		logger.Info().Msg("registered source: AllEvents")
	}

	switch {
	case primary != nil && secondary != nil:
		return sources.NewFallback(primary, secondary, logger)
	case primary != nil:
		return primary
	default:
		return secondary
	}
}

// PaperRegistry returns the paper providers in display order: arXiv, PubMed
// Central, DOAJ, CORE.
func (s *Set) PaperRegistry() *aggregator.Registry {
	r := aggregator.NewRegistry()
	for _, a := range s.paperAdapters() {
		r.Register(a)
	}
	return r
}

// PaperSources returns the single-provider paper adapters other than arXiv,
// keyed by source type.
func (s *Set) PaperSources() map[domain.SourceType]sources.Adapter {
	out := make(map[domain.SourceType]sources.Adapter)
	for _, a := range s.paperAdapters() {
		if a.Source() != domain.SourceArXiv {
			out[a.Source()] = a
		}
	}
	return out
}

func (s *Set) paperAdapters() []sources.Adapter {
	var out []sources.Adapter
	if s.ArXiv != nil {
		out = append(out, s.ArXiv)
	}
	if s.PubMedCentral != nil {
		out = append(out, s.PubMedCentral)
	}
	if s.DOAJ != nil {
		out = append(out, s.DOAJ)
	}
	if s.CORE != nil {
		out = append(out, s.CORE)
	}
	return out
}

// NewsRegistry returns a registry holding NewsAPI, or an empty one.
func (s *Set) NewsRegistry() *aggregator.Registry {
	r := aggregator.NewRegistry()
	if s.NewsAPI != nil {
		r.Register(s.NewsAPI)
	}
	return r
}

// EventsRegistry returns a registry holding the events chain, or an empty one.
func (s *Set) EventsRegistry() *aggregator.Registry {
	r := aggregator.NewRegistry()
	if s.Events != nil {
		r.Register(s.Events)
	}
	return r
}
