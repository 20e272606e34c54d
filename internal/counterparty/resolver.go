package counterparty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

// Resolver maps a statement's counterparty text to a persisted entity,
// creating it on first sight. Concurrent resolvers may race on creation; the
// loser re-reads the winner's row instead of failing.
type Resolver struct {
	repo       repository.CounterpartyRepository
	classifier Classifier
	logger     *slog.Logger
}

func NewResolver(repo repository.CounterpartyRepository, classifier Classifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &Resolver{
		repo:       repo,
		classifier: classifier,
		logger:     logger,
	}
}

// Normalize trims the display name and reference. A blank name becomes the
// unknown sentinel and a blank reference becomes nil.
func Normalize(name string, reference *string) (string, *string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = constants.UnknownCounterpartyName
	}
	if reference != nil {
		ref := strings.TrimSpace(*reference)
		if ref == "" {
			return name, nil
		}
		reference = &ref
	}
	return name, reference
}

// Resolve returns the counterparty identified by reference, or by name when
// reference is blank. An empty inferred type is filled in by the classifier.
// Only store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, name string, reference *string, inferred constants.CounterpartyType) (*entity.Counterparty, error) {
	name, reference = Normalize(name, reference)
	if inferred == "" {
		inferred = r.classifier.Classify(name, reference)
	}
	logger := common.LoggerFromContext(ctx, r.logger)

	existing, err := r.repo.FindByIdentity(ctx, name, reference)
	switch {
	case err == nil:
		return r.reconcile(ctx, logger, existing, inferred)
	case !errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("look up counterparty: %w", err)
	}

	c := &entity.Counterparty{
		Name:          name,
		AccountNumber: reference,
		Type:          inferred,
	}
	err = r.repo.Create(ctx, c)
	if err == nil {
		logger.Debug("counterparty created", "counterparty_id", c.ID, "name", name, "type", inferred)
		return c, nil
	}
	if !errors.Is(err, repository.ErrCounterpartyExists) {
		return nil, fmt.Errorf("create counterparty: %w", err)
	}

	// Lost the insert race; the winner's row is now visible.
	logger.Debug("counterparty created concurrently, re-reading", "name", name)
	existing, err = r.repo.FindByIdentity(ctx, name, reference)
	if err != nil {
		return nil, fmt.Errorf("re-read counterparty after conflict: %w", err)
	}
	return r.reconcile(ctx, logger, existing, inferred)
}

// reconcile applies the one-way classification rule: any known inferred type
// replaces a different stored type, UNKNOWN never replaces anything.
func (r *Resolver) reconcile(ctx context.Context, logger *slog.Logger, c *entity.Counterparty, inferred constants.CounterpartyType) (*entity.Counterparty, error) {
	if inferred == constants.CounterpartyUnknown || inferred == c.Type {
		return c, nil
	}
	if err := r.repo.UpdateType(ctx, c.ID, inferred); err != nil {
		return nil, fmt.Errorf("update counterparty type: %w", err)
	}
	logger.Info("counterparty reclassified", "counterparty_id", c.ID, "from", c.Type, "to", inferred)
	c.Type = inferred
	return c, nil
}

// Memo caches resolutions for the lifetime of one ingestion job so repeated
// names cost a single store round trip. It is not safe for concurrent use.
type Memo struct {
	resolver *Resolver
	seen     map[string]*entity.Counterparty
}

func NewMemo(r *Resolver) *Memo {
	return &Memo{resolver: r, seen: make(map[string]*entity.Counterparty)}
}

// Resolve classifies the party and consults the cache before the store. A
// cached entry is re-resolved only when the new evidence would reclassify it.
func (m *Memo) Resolve(ctx context.Context, name string, reference *string) (*entity.Counterparty, error) {
	name, reference = Normalize(name, reference)
	inferred := m.resolver.classifier.Classify(name, reference)
	key := repository.IdentityKey(name, reference)

	if c, ok := m.seen[key]; ok && (inferred == constants.CounterpartyUnknown || inferred == c.Type) {
		return c, nil
	}
	c, err := m.resolver.Resolve(ctx, name, reference, inferred)
	if err != nil {
		return nil, err
	}
	m.seen[key] = c
	return c, nil
}

// Len is the number of distinct counterparties resolved so far.
func (m *Memo) Len() int { return len(m.seen) }
