package kanban

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenix/internal/core/id"
	"replenix/internal/domain/audit"
)

type memRepo struct {
	cards       map[id.ID]Card
	transitions []Transition
	failUpdate  error
}

func (r *memRepo) GetForUpdate(_ context.Context, tenantID id.ID, ids []id.ID) ([]Card, error) {
	var out []Card
	for _, cid := range ids {
		if c, ok := r.cards[cid]; ok && c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateStage(_ context.Context, card Card) error {
	if r.failUpdate != nil {
		return r.failUpdate
	}
	r.cards[card.ID] = card
	return nil
}

func (r *memRepo) InsertTransition(_ context.Context, t Transition) error {
	r.transitions = append(r.transitions, t)
	return nil
}

func cardIn(tenant id.ID, stage Stage, cycles int) Card {
	return Card{ID: id.New(), TenantID: tenant, LoopID: id.New(), Stage: stage, CompletedCycles: cycles}
}

func TestAdvanceReceived(t *testing.T) {
	tenant := id.New()
	ordered := cardIn(tenant, StageOrdered, 2)
	inTransit := cardIn(tenant, StageInTransit, 0)
	restocked := cardIn(tenant, StageRestocked, 5)
	triggered := cardIn(tenant, StageTriggered, 1)

	repo := &memRepo{cards: map[id.ID]Card{
		ordered.ID: ordered, inTransit.ID: inTransit, restocked.ID: restocked, triggered.ID: triggered,
	}}
	store := audit.NewMemoryStore()
	a := NewAdvancer(repo, store)
	fixed := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	got, err := a.AdvanceReceived(context.Background(), tenant,
		[]id.ID{ordered.ID, inTransit.ID, restocked.ID, triggered.ID, id.New()}, nil, map[string]any{"receiptId": "r1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, ordered.ID, got[0].CardID)
	assert.Equal(t, StageOrdered, got[0].FromStage)
	assert.Equal(t, StageReceived, got[0].ToStage)
	assert.Equal(t, 3, got[0].CycleNumber)
	assert.Equal(t, MethodSystem, got[0].Method)

	assert.Equal(t, StageReceived, repo.cards[ordered.ID].Stage)
	assert.Equal(t, fixed, repo.cards[ordered.ID].StageEnteredAt)
	assert.Equal(t, 1, repo.cards[inTransit.ID].CompletedCycles)

	assert.Equal(t, StageRestocked, repo.cards[restocked.ID].Stage)
	assert.Equal(t, 5, repo.cards[restocked.ID].CompletedCycles)
	assert.Equal(t, StageTriggered, repo.cards[triggered.ID].Stage)

	assert.Len(t, repo.transitions, 2)
	assert.Len(t, store.Entries(tenant), 2)
}

func TestAdvanceReceived_SettledCardIsNoop(t *testing.T) {
	tenant := id.New()
	restocked := cardIn(tenant, StageRestocked, 1)
	repo := &memRepo{cards: map[id.ID]Card{restocked.ID: restocked}}
	store := audit.NewMemoryStore()

	got, err := NewAdvancer(repo, store).AdvanceReceived(context.Background(), tenant, []id.ID{restocked.ID}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, repo.transitions)
	assert.Empty(t, store.Entries(tenant))
}

func TestAdvanceReceived_OtherTenantIgnored(t *testing.T) {
	card := cardIn(id.New(), StageOrdered, 0)
	repo := &memRepo{cards: map[id.ID]Card{card.ID: card}}

	got, err := NewAdvancer(repo, audit.NewMemoryStore()).AdvanceReceived(context.Background(), id.New(), []id.ID{card.ID}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, StageOrdered, repo.cards[card.ID].Stage)
}

func TestAdvanceReceived_UpdateFailure(t *testing.T) {
	tenant := id.New()
	card := cardIn(tenant, StageOrdered, 0)
	repo := &memRepo{cards: map[id.ID]Card{card.ID: card}, failUpdate: errors.New("lock timeout")}

	_, err := NewAdvancer(repo, audit.NewMemoryStore()).AdvanceReceived(context.Background(), tenant, []id.ID{card.ID}, nil, nil)
	require.Error(t, err)
}
