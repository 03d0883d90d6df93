package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Router dispatches module requests to provider adapters. It is single-shot
// and stateless per request: no retries beyond the configured fallback walk,
// no queuing, no session state. Process never returns an error or panics;
// every outcome is an envelope.
type Router struct {
	clients    map[Provider]Client
	config     *RouterConfig
	rateLimits map[Provider]*rateLimiter
	health     map[Provider]bool
	mu         sync.RWMutex
	logger     *zap.Logger
	stop       chan struct{}
	stopOnce   sync.Once

	onFallback     func(from, to Provider)
	onHealthChange func(p Provider, healthy bool)
}

// rateLimiter is a per-provider token bucket refilled each minute.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	lastRefill time.Time
}

// NewRouter wires the given adapters under the routing configuration. Nil
// config falls back to defaults.
func NewRouter(clients []Client, config *RouterConfig, logger *zap.Logger) *Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byProvider := make(map[Provider]Client, len(clients))
	for _, c := range clients {
		byProvider[c.Provider()] = c
	}

	rateLimits := make(map[Provider]*rateLimiter)
	for provider, limit := range config.RateLimits {
		rateLimits[provider] = &rateLimiter{
			tokens:     limit,
			maxTokens:  limit,
			lastRefill: time.Now(),
		}
	}

	return &Router{
		clients:    byProvider,
		config:     config,
		rateLimits: rateLimits,
		health:     make(map[Provider]bool),
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// ReplaceClients swaps the registered adapters, used after provider
// credentials change. Health state for removed providers is dropped.
func (r *Router) ReplaceClients(clients []Client) {
	byProvider := make(map[Provider]Client, len(clients))
	for _, c := range clients {
		byProvider[c.Provider()] = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = byProvider
	for provider := range r.health {
		if _, ok := byProvider[provider]; !ok {
			delete(r.health, provider)
		}
	}
}

// SetFallbackHook registers a callback invoked whenever the router falls
// back from one provider to another. Set before serving traffic.
func (r *Router) SetFallbackHook(fn func(from, to Provider)) {
	r.onFallback = fn
}

// SetHealthHook registers a callback invoked when a provider's observed
// health changes between probe cycles. Set before serving traffic.
func (r *Router) SetHealthHook(fn func(p Provider, healthy bool)) {
	r.onHealthChange = fn
}

// Process routes one request and always returns an envelope. Adapter errors
// and panics are converted to error-typed envelopes at this layer; nothing
// propagates to the caller.
func (r *Router) Process(ctx context.Context, req *Request) (env *Envelope) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("adapter panic recovered",
				zap.String("module", string(req.Module)),
				zap.Any("panic", rec))
			env = errorEnvelope(req, req.Provider, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if _, err := ParseModule(string(req.Module)); err != nil {
		return errorEnvelope(req, req.Provider, fmt.Sprintf("Unknown module: %s", req.Module))
	}

	prompt := r.buildPrompt(req)

	// Snapshot the adapter set so credential swaps mid-request cannot race
	// the fallback walk.
	clients := r.snapshotClients()

	provider, err := r.selectProvider(clients, req.Provider)
	if err != nil {
		return errorEnvelope(req, req.Provider, err.Error())
	}

	genReq := &GenerateRequest{
		ID:          req.ID,
		Prompt:      prompt,
		Model:       req.Model,
		Temperature: 0.7,
		Context:     req.Context,
	}

	resp, served, err := r.generateWithFallback(ctx, clients, provider, genReq)
	if err != nil {
		r.logger.Warn("all providers failed",
			zap.String("module", string(req.Module)),
			zap.String("provider", string(provider)),
			zap.Error(err))
		return errorEnvelope(req, served, err.Error())
	}

	env = newEnvelope(req, served)
	env.Type = string(req.Module)
	env.Model = resp.Model
	env.Payload = resp.Content
	env.Usage = resp.Usage
	env.Duration = resp.Duration
	return env
}

// buildPrompt applies the module template, letting the memory module fold in
// recent conversation context supplied by the caller.
func (r *Router) buildPrompt(req *Request) string {
	if req.Module == ModuleMemory {
		if recent, ok := req.Context["recent_context"].(string); ok {
			return BuildMemoryPrompt(req.Message, recent)
		}
	}
	return BuildPrompt(req.Module, req.Message)
}

// snapshotClients copies the adapter map under the read lock.
func (r *Router) snapshotClients() map[Provider]Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make(map[Provider]Client, len(r.clients))
	for provider, client := range r.clients {
		clients[provider] = client
	}
	return clients
}

// selectProvider resolves explicit choice, configured default, then the first
// registered adapter.
func (r *Router) selectProvider(clients map[Provider]Client, explicit Provider) (Provider, error) {
	if explicit != "" {
		if _, ok := clients[explicit]; !ok {
			return explicit, fmt.Errorf("provider not available: %s", explicit)
		}
		return explicit, nil
	}

	if def := r.config.DefaultProvider; def != "" {
		if _, ok := clients[def]; ok {
			return def, nil
		}
	}

	for _, p := range Providers() {
		if _, ok := clients[p]; ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("no providers configured")
}

// generateWithFallback invokes the primary adapter, then walks the fallback
// order on rate-limit exhaustion or retryable failure. It returns the provider
// that actually served the request.
func (r *Router) generateWithFallback(ctx context.Context, clients map[Provider]Client, primary Provider, req *GenerateRequest) (*GenerateResponse, Provider, error) {
	order := append([]Provider{primary}, r.config.FallbackOrder[primary]...)

	var lastErr error
	lastProvider := primary

	for i, provider := range order {
		client, ok := clients[provider]
		if !ok {
			continue
		}
		if !r.allow(provider) {
			lastErr = &ProviderError{Provider: provider, Kind: ErrKindRateLimited, Message: "local rate limit exceeded"}
			lastProvider = provider
			continue
		}

		if i > 0 {
			r.logger.Info("falling back",
				zap.String("from", string(lastProvider)),
				zap.String("to", string(provider)))
			if r.onFallback != nil {
				r.onFallback(lastProvider, provider)
			}
		}

		resp, err := client.Generate(ctx, req)
		if err == nil {
			return resp, provider, nil
		}

		lastErr = err
		lastProvider = provider

		if pe, ok := AsProviderError(err); ok && !pe.Retryable() {
			// Misconfiguration or a rejected request will not succeed
			// elsewhere with the same credentials story; stop here.
			if pe.Kind == ErrKindNotConfigured {
				continue // another provider may be configured
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return nil, lastProvider, lastErr
}

// allow consumes a rate-limit token for the provider, refilling by elapsed
// minutes since the last refill.
func (r *Router) allow(provider Provider) bool {
	limiter, ok := r.rateLimits[provider]
	if !ok {
		return true
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	if refill := int(now.Sub(limiter.lastRefill).Minutes()) * limiter.maxTokens; refill > 0 {
		limiter.tokens = min(limiter.maxTokens, limiter.tokens+refill)
		limiter.lastRefill = now
	}

	if limiter.tokens > 0 {
		limiter.tokens--
		return true
	}
	return false
}

// MonitorHealth probes every adapter on the given interval until Stop.
func (r *Router) MonitorHealth(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.checkHealth()
	for {
		select {
		case <-ticker.C:
			r.checkHealth()
		case <-r.stop:
			return
		}
	}
}

func (r *Router) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for provider, client := range r.snapshotClients() {
		wg.Add(1)
		go func(p Provider, c Client) {
			defer wg.Done()
			healthy := c.Health(ctx) == nil

			r.mu.Lock()
			changed := r.health[p] != healthy
			r.health[p] = healthy
			r.mu.Unlock()

			if changed && r.onHealthChange != nil {
				r.onHealthChange(p, healthy)
			}
		}(provider, client)
	}
	wg.Wait()
}

// Stop terminates the health monitor.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// HealthStatus returns the last observed health per registered provider.
func (r *Router) HealthStatus() map[Provider]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[Provider]bool, len(r.clients))
	for provider := range r.clients {
		status[provider] = r.health[provider]
	}
	return status
}

// ProviderUsage returns usage statistics for every registered adapter.
func (r *Router) ProviderUsage() map[Provider]*ProviderUsage {
	clients := r.snapshotClients()
	usage := make(map[Provider]*ProviderUsage, len(clients))
	for provider, client := range clients {
		usage[provider] = client.Usage()
	}
	return usage
}

// RegisteredProviders lists providers with a live adapter.
func (r *Router) RegisteredProviders() []Provider {
	clients := r.snapshotClients()
	out := make([]Provider, 0, len(clients))
	for _, p := range Providers() {
		if _, ok := clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
