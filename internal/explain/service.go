package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smishguard/explaind/internal/extract"
	"github.com/smishguard/explaind/internal/llm"
	"github.com/smishguard/explaind/internal/model"
	"github.com/smishguard/explaind/internal/prompt"
	"github.com/smishguard/explaind/internal/store"
)

// persistTimeout bounds the best-effort cache write after a stream completes
const persistTimeout = 5 * time.Second

// Service drives the per-request explanation state machine:
//
//	RESOLVE -> (CACHE_HIT | GENERATE) -> PERSIST? -> DONE
//
// Events are emitted strictly in meta, evidence, delta*, done order. Requests
// are independent; the only shared mutable state is the record store itself,
// where concurrent cache writes for the same record are last-write-wins.
type Service struct {
	gateway  store.Gateway
	provider llm.Provider
	registry *extract.Registry
	opts     prompt.Options
	log      *slog.Logger
}

// New creates an explanation service over the given collaborators
func New(gateway store.Gateway, provider llm.Provider, opts prompt.Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gateway:  gateway,
		provider: provider,
		registry: extract.NewRegistry(),
		opts:     opts,
		log:      log,
	}
}

// resolved is one successfully fetched and adapted analysis result
type resolved struct {
	bundle model.EvidenceBundle
	status string

	// cached is the previously generated explanation, if any
	cached string

	// persisted is true for records living in the real store; only those
	// are eligible for explanation write-back. The fixture never is.
	persisted bool
}

// resolve fetches a record by identifier and adapts it to the canonical
// bundle. The reserved fixture identifier bypasses the store entirely.
func (s *Service) resolve(ctx context.Context, id string) (*resolved, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty result id", ErrBadRequest)
	}

	if rec := store.FixtureRecord(id); rec != nil {
		return &resolved{
			bundle: s.registry.Bundle(rec.ResultID, rec.Details),
			status: rec.Status,
		}, nil
	}

	rec, err := s.gateway.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: result %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: fetch result %s: %v", ErrUnavailable, id, err)
	}
	if rec.Details == nil {
		return nil, fmt.Errorf("%w: result %s has no analyzable details", ErrNotFound, id)
	}

	return &resolved{
		bundle:    s.registry.Bundle(id, rec.Details),
		status:    rec.Status,
		cached:    rec.Summary,
		persisted: true,
	}, nil
}

// ExplainResult streams the explanation for one analysis result. A non-empty
// message overrides the stored message text and always forces regeneration,
// since any cached text was generated for the original message.
func (s *Service) ExplainResult(ctx context.Context, id, message string, emit EmitFunc) error {
	r, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}

	if err := emit(Event{Name: EventMeta, Data: metaPayload(r, message)}); err != nil {
		return err
	}
	if err := emit(Event{Name: EventEvidence, Data: evidencePayload(r.bundle)}); err != nil {
		return err
	}

	cached := r.cached
	if message != "" {
		cached = ""
	}

	if cached != "" {
		if err := replay(ctx, cached, emit); err != nil {
			return err
		}
		return emit(doneEvent())
	}

	p, err := prompt.Analysis([]model.EvidenceBundle{r.bundle}, message, s.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	text, err := s.generate(ctx, p, emit)
	if err != nil {
		return err
	}

	// Best-effort write-back: only freshly generated text for a persisted
	// record with no override is cached. The stream has already committed
	// to the caller, so a failure here is logged and swallowed.
	if r.persisted && message == "" && ctx.Err() == nil {
		s.persist(id, text)
	}

	return emit(doneEvent())
}

// ExplainResults streams one combined explanation covering several analysis
// results. Identifiers that fail to resolve are dropped silently; the request
// fails only when nothing resolves.
func (s *Service) ExplainResults(ctx context.Context, ids []string, message string, emit EmitFunc) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty identifier list", ErrBadRequest)
	}

	results := make([]*resolved, 0, len(ids))
	for _, id := range ids {
		r, err := s.resolve(ctx, id)
		if err != nil {
			s.log.Debug("dropping unresolved result", "result_id", id, "error", err)
			continue
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no results resolved", ErrNotFound)
	}

	metaItems := make([]map[string]any, 0, len(results))
	evidenceItems := make([]map[string]any, 0, len(results))
	bundles := make([]model.EvidenceBundle, 0, len(results))
	for _, r := range results {
		metaItems = append(metaItems, metaPayload(r, message))
		item := evidencePayload(r.bundle)
		item["result_id"] = r.bundle.RequestID
		evidenceItems = append(evidenceItems, item)
		bundles = append(bundles, r.bundle)
	}

	if err := emit(Event{Name: EventMeta, Data: map[string]any{"items": metaItems}}); err != nil {
		return err
	}
	if err := emit(Event{Name: EventEvidence, Data: map[string]any{"items": evidenceItems}}); err != nil {
		return err
	}

	p, err := prompt.Analysis(bundles, message, s.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if _, err := s.generate(ctx, p, emit); err != nil {
		return err
	}

	return emit(doneEvent())
}

// ExplainMessage streams an explanation of a raw message given an externally
// computed safety-check verdict. Nothing is extracted or persisted.
func (s *Service) ExplainMessage(ctx context.Context, message, verdict string, emit EmitFunc) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty message", ErrBadRequest)
	}

	meta := map[string]any{
		"message":              message,
		"safe_browsing_result": verdict,
	}
	if err := emit(Event{Name: EventMeta, Data: meta}); err != nil {
		return err
	}

	p, err := prompt.MessageSafety(message, verdict, s.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if _, err := s.generate(ctx, p, emit); err != nil {
		return err
	}

	return emit(doneEvent())
}

// ExplainMessageLinks streams the multi-link variant: one message, several
// links each paired with its own verdict, explained in input order.
func (s *Service) ExplainMessageLinks(ctx context.Context, message string, links []prompt.LinkVerdict, emit EmitFunc) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty message", ErrBadRequest)
	}
	if len(links) == 0 {
		return fmt.Errorf("%w: empty link list", ErrBadRequest)
	}

	meta := map[string]any{
		"message": message,
		"links":   links,
	}
	if err := emit(Event{Name: EventMeta, Data: meta}); err != nil {
		return err
	}

	p, err := prompt.MessageLinks(message, links, s.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if _, err := s.generate(ctx, p, emit); err != nil {
		return err
	}

	return emit(doneEvent())
}

// generate invokes the generation engine, forwarding each fragment as a delta
// event the moment it arrives while accumulating the full text for
// persistence. No other buffering happens.
func (s *Service) generate(ctx context.Context, p prompt.Prompt, emit EmitFunc) (string, error) {
	var sb strings.Builder
	err := s.provider.Stream(ctx, llm.StreamRequest{Prompt: p}, func(text string) error {
		sb.WriteString(text)
		return emit(deltaEvent(text))
	})
	if err != nil {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		return sb.String(), fmt.Errorf("%w: generation failed: %v", ErrUnavailable, err)
	}
	return sb.String(), nil
}

func (s *Service) persist(id, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.gateway.SaveExplanation(ctx, id, text, ""); err != nil {
		s.log.Warn("explanation write-back failed", "result_id", id, "error", err)
	}
}

func metaPayload(r *resolved, message string) map[string]any {
	// An absent override serializes as null, not "": downstream UIs key on
	// the distinction.
	var msg any
	if message != "" {
		msg = message
	}
	return map[string]any{
		"result_id":  r.bundle.RequestID,
		"url":        r.bundle.ExtractedURL,
		"message":    msg,
		"risk_level": r.bundle.RiskLevel,
		"risk_score": r.bundle.RiskScore,
		"screenshot": r.bundle.Screenshot,
		"status":     r.status,
	}
}

func evidencePayload(b model.EvidenceBundle) map[string]any {
	evidence := b.Evidence
	if evidence == nil {
		evidence = []model.EvidenceItem{}
	}
	limitations := b.Limitations
	if limitations == nil {
		limitations = []string{}
	}
	return map[string]any{
		"coverage":    b.Coverage,
		"limitations": limitations,
		"evidence":    evidence,
	}
}
