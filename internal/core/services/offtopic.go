package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

var declineMessages = []string{
	"Omlouvám se, ale s tímto dotazem vám neporadím. Rád odpovím na otázky týkající se obce, úřadu a jeho služeb.",
	"Na tohle bohužel odpovědět neumím. Zeptejte se mě prosím na něco, co se týká života v obci.",
	"To je mimo oblast, ve které mohu pomoci. Můžu vám ale poradit třeba s úředními hodinami, poplatky nebo svozem odpadu.",
	"Tady vám nepomohu, specializuji se jen na obecní záležitosti. Zkuste se zeptat na akce, vyhlášky nebo kontakty na úřad.",
	"S tímto dotazem se prosím obraťte jinam. Já odpovídám na otázky o obci a službách obecního úřadu.",
}

var blockedMessages = []string{
	"Dnes už jste položili několik dotazů mimo téma obce. Vraťte se prosím později, rád pomohu s obecními záležitostmi.",
	"Momentálně nemohu pokračovat v konverzaci. Zkuste to prosím znovu zítra.",
	"Konverzace je dočasně pozastavena kvůli opakovaným dotazům mimo téma. Vraťte se prosím za několik hodin.",
}

// OfftopicGate detects the off-topic marker in generated answers and
// escalates repeat offenders to a temporary block.
type OfftopicGate struct {
	store     driven.ViolationStore
	marker    string
	threshold int
	window    time.Duration
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// OfftopicOption configures the gate.
type OfftopicOption func(*OfftopicGate)

// WithRand makes message selection deterministic.
func WithRand(r *rand.Rand) OfftopicOption {
	return func(g *OfftopicGate) {
		if r != nil {
			g.rnd = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) OfftopicOption {
	return func(g *OfftopicGate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewOfftopicGate creates a gate backed by the violation log.
func NewOfftopicGate(store driven.ViolationStore, cfg domain.OfftopicSettings, opts ...OfftopicOption) *OfftopicGate {
	defaults := domain.DefaultAppSettings().Offtopic
	g := &OfftopicGate{
		store:     store,
		marker:    cfg.Marker,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		now:       time.Now,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x746f776e)),
	}
	if g.marker == "" {
		g.marker = defaults.Marker
	}
	if g.threshold <= 0 {
		g.threshold = defaults.Threshold
	}
	if g.window <= 0 {
		g.window = defaults.Window
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Marker returns the sentinel the model emits for off-topic questions.
func (g *OfftopicGate) Marker() string { return g.marker }

// IsOfftopicResponse reports whether text contains the marker.
func (g *OfftopicGate) IsOfftopicResponse(text string) bool {
	return strings.Contains(text, g.marker)
}

// PendingMarker returns how many trailing bytes of text could be the start
// of the marker and must be held back until more text arrives.
func (g *OfftopicGate) PendingMarker(text string) int {
	for k := min(len(g.marker)-1, len(text)); k > 0; k-- {
		if strings.HasSuffix(text, g.marker[:k]) {
			return k
		}
	}
	return 0
}

// RecordViolation appends an off-topic question to the guest's log.
func (g *OfftopicGate) RecordViolation(ctx context.Context, guestID, question string) error {
	v := &domain.OfftopicViolation{
		ID:        uuid.New().String(),
		GuestID:   guestID,
		Question:  question,
		CreatedAt: g.now(),
	}
	if err := g.store.RecordViolation(ctx, v); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// IsBlocked reports whether the guest reached the violation threshold within
// the rolling window. The block lifts by itself as violations age out.
func (g *OfftopicGate) IsBlocked(ctx context.Context, guestID string) (bool, error) {
	n, err := g.store.CountViolationsSince(ctx, guestID, g.now().Add(-g.window))
	if err != nil {
		return false, fmt.Errorf("count violations: %w", err)
	}
	return n >= g.threshold, nil
}

// DeclineMessage returns a polite refusal for an off-topic question.
func (g *OfftopicGate) DeclineMessage() string {
	return g.pick(declineMessages)
}

// BlockedMessage returns a "come back later" message for a blocked guest.
func (g *OfftopicGate) BlockedMessage() string {
	return g.pick(blockedMessages)
}

// IsCannedMessage reports whether text is one of the substitution messages.
func IsCannedMessage(text string) bool {
	for _, pool := range [][]string{declineMessages, blockedMessages} {
		for _, m := range pool {
			if m == text {
				return true
			}
		}
	}
	return false
}

// Sweep deletes violations older than retention.
func (g *OfftopicGate) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	n, err := g.store.PurgeViolationsBefore(ctx, g.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge violations: %w", err)
	}
	return n, nil
}

func (g *OfftopicGate) pick(pool []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pool[g.rnd.IntN(len(pool))]
}
