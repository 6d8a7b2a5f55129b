package checkout

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/api"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/order/pkg/response"
)

const DefaultStatusInterval = time.Minute

type StatusFetcher struct {
	api    APIClient
	tokens TokenSource
	now    func() time.Time
}

func NewStatusFetcher(client APIClient, tokens TokenSource) *StatusFetcher {
	return &StatusFetcher{api: client, tokens: tokens, now: time.Now}
}

// FetchOrderStatuses lists every order of the session behind tokens.
func (s *StatusFetcher) FetchOrderStatuses(c context.Context) (response.OrderStatuses, error) {
	c, span := otel.Tracer.Start(c, "StatusFetcher FetchOrderStatuses")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "StatusFetcher FetchOrderStatuses").
		Logger()

	token, err := s.tokens.EnsureValid(c)
	if err != nil {
		err = fmt.Errorf("failed getting session token with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.OrderStatuses{}, err
	}
	if token == "" {
		inErrors.HandleError(inErrors.ErrNoSessionToken, span)
		return response.OrderStatuses{}, inErrors.ErrNoSessionToken
	}

	resp := response.OrderStatuses{}
	err = s.api.Do(c, http.MethodPost, endpointOrderStatuses, nil, &resp, api.WithBearerToken(token))
	if err != nil {
		err = fmt.Errorf("failed fetching order statuses with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.OrderStatuses{}, err
	}
	if resp.Orders == nil {
		resp.Orders = []response.OrderStatus{}
	}
	resp.FetchedAt = s.now()
	logger.Debug().Int("orders", len(resp.Orders)).Msg("fetched order statuses")
	return resp, nil
}

// Poller refreshes order statuses on a fixed interval and keeps the latest
// result and error.
type Poller struct {
	fetcher  *StatusFetcher
	interval time.Duration
	onUpdate func(response.OrderStatuses)

	mu      sync.RWMutex
	latest  response.OrderStatuses
	lastErr error
	loaded  bool
}

func NewPoller(fetcher *StatusFetcher, interval time.Duration, onUpdate func(response.OrderStatuses)) *Poller {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &Poller{fetcher: fetcher, interval: interval, onUpdate: onUpdate}
}

// Run fetches once right away and then on every tick until c is done.
func (p *Poller) Run(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Poller Run").
		Dur("interval", p.interval).
		Logger()

	logger.Info().Msg("start polling order statuses")
	p.Refetch(c)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stop polling order statuses")
			return
		case <-ticker.C:
			p.Refetch(c)
		}
	}
}

func (p *Poller) Refetch(c context.Context) error {
	statuses, err := p.fetcher.FetchOrderStatuses(c)

	p.mu.Lock()
	p.loaded = true
	p.lastErr = err
	if err == nil {
		p.latest = statuses
	}
	p.mu.Unlock()

	if err == nil && p.onUpdate != nil {
		p.onUpdate(statuses)
	}
	return err
}

// Latest returns the last good result, the error of the last fetch, and
// whether any fetch has finished yet.
func (p *Poller) Latest() (response.OrderStatuses, error, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.lastErr, p.loaded
}
