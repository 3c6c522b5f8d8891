package gallery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emoseum/internal/costs"
	"emoseum/internal/signals"
	"emoseum/pkg/domain"
	"emoseum/pkg/store"
)

type fakeObjects struct {
	mu         sync.Mutex
	presignErr error
	presigned  []string
}

func (f *fakeObjects) PutImage(ctx context.Context, key string, png []byte) error { return nil }

func (f *fakeObjects) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presigned = append(f.presigned, key)
	return "https://objects.test/" + key, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error { return nil }

type fixture struct {
	store   *store.MemoryStore
	objects *fakeObjects
	signals *signals.Ledger
	costs   *costs.Ledger
	gallery *Gallery
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	objects := &fakeObjects{}
	sig := signals.NewLedger(s)
	c := costs.NewLedger(s)
	return &fixture{
		store:   s,
		objects: objects,
		signals: sig,
		costs:   c,
		gallery: New(s, objects, sig, c, time.Minute, nil),
	}
}

func (f *fixture) seedUser(t *testing.T) {
	t.Helper()
	if err := f.store.SaveUser(domain.User{ID: "u1", Nickname: "aru", Tier: domain.TierBaseline}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (f *fixture) seedJourney(t *testing.T, id string, stage domain.Stage, startedAt time.Time) domain.Journey {
	t.Helper()
	j := domain.Journey{
		ID: id, UserID: "u1", Stage: stage, DiaryText: "entry",
		PromptStatus: domain.SafetyApproved, ImageStatus: domain.SafetyApproved,
		GuestbookStatus: domain.SafetyApproved, CuratorStatus: domain.SafetyApproved,
		ImageKey:  "reflection/u1/" + id + ".png",
		StartedAt: startedAt, UpdatedAt: startedAt,
	}
	if err := f.store.SaveJourney(j); err != nil {
		t.Fatalf("seed journey: %v", err)
	}
	return j
}

func TestListNewestFirstWithPaging(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"j1", "j2", "j3"} {
		f.seedJourney(t, id, domain.StageClosure, base.Add(time.Duration(i)*24*time.Hour))
	}

	all, err := f.gallery.List("u1", store.JourneyQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "j3" || all[2].ID != "j1" {
		t.Fatalf("order = %v", ids(all))
	}

	page, err := f.gallery.List("u1", store.JourneyQuery{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 || page[0].ID != "j2" {
		t.Errorf("page = %v", ids(page))
	}

	windowed, err := f.gallery.List("u1", store.JourneyQuery{From: base.Add(36 * time.Hour)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != "j3" {
		t.Errorf("windowed = %v", ids(windowed))
	}
}

func ids(js []domain.Journey) []string {
	out := make([]string, len(js))
	for i, j := range js {
		out[i] = j.ID
	}
	return out
}

func TestListUnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gallery.List("nobody", store.JourneyQuery{}); !errors.Is(err, domain.ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestGetPresignsApprovedImageOnly(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageClosure, time.Now().UTC())

	j, url, err := f.gallery.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.ID != "j1" || url != "https://objects.test/"+j.ImageKey {
		t.Errorf("url = %q", url)
	}

	pending := f.seedJourney(t, "j2", domain.StageMoment, time.Now().UTC())
	pending.ImageStatus = domain.SafetyPending
	if err := f.store.SaveJourney(pending); err != nil {
		t.Fatalf("save journey: %v", err)
	}
	_, url, err = f.gallery.Get(context.Background(), "j2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if url != "" {
		t.Errorf("unapproved image got url %q", url)
	}
}

func TestGetSurvivesPresignFailure(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageClosure, time.Now().UTC())
	f.objects.presignErr = errors.New("minio down")

	j, url, err := f.gallery.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.ID != "j1" || url != "" {
		t.Errorf("j=%s url=%q", j.ID, url)
	}
}

func TestReactRecordsSignals(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageClosure, time.Now().UTC())

	if err := f.gallery.React("j1", "heart"); err != nil {
		t.Fatalf("React: %v", err)
	}
	if err := f.gallery.React("j1", "hmm"); err != nil {
		t.Fatalf("React: %v", err)
	}

	sum, err := f.signals.Summarize("u1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.PositiveReactions != 1 || sum.MessagesEngaged != 1 {
		t.Errorf("summary = %+v", sum)
	}

	j, _, err := f.store.GetJourney("j1")
	if err != nil {
		t.Fatalf("GetJourney: %v", err)
	}
	if len(j.Reactions) != 2 || j.Reactions[0] != "heart" {
		t.Errorf("reactions = %v", j.Reactions)
	}
}

type signalFailStore struct {
	*store.MemoryStore
}

func (s *signalFailStore) AppendSignal(e domain.SignalEvent) error {
	return errors.New("signal table down")
}

func TestReactCommitsJourneyBeforeSignal(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageClosure, time.Now().UTC())

	failing := &signalFailStore{MemoryStore: f.store}
	g := New(failing, f.objects, signals.NewLedger(failing), f.costs, time.Minute, nil)

	// the committed reaction wins; the lost signal is the logged side
	if err := g.React("j1", "heart"); err != nil {
		t.Fatalf("React: %v", err)
	}

	j, _, err := f.store.GetJourney("j1")
	if err != nil {
		t.Fatalf("GetJourney: %v", err)
	}
	if len(j.Reactions) != 1 || j.Reactions[0] != "heart" {
		t.Errorf("reactions = %v", j.Reactions)
	}
	events, err := f.store.ListSignalsByUser("u1")
	if err != nil {
		t.Fatalf("ListSignalsByUser: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("failed append still recorded %d signals", len(events))
	}
}

func TestReactRequiresClosedJourney(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageReflection, time.Now().UTC())

	if err := f.gallery.React("j1", "heart"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if err := f.gallery.React("missing", "heart"); !errors.Is(err, domain.ErrUnknownJourney) {
		t.Errorf("err = %v, want ErrUnknownJourney", err)
	}
	if err := f.gallery.React("j1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUsageSummary(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t)
	f.seedJourney(t, "j1", domain.StageClosure, time.Now().UTC())
	for i := 0; i < 2; i++ {
		if err := f.costs.Record("j1", "generate_text", 1); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := f.costs.Record("j1", "generate_image", 1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	by, err := f.gallery.UsageSummary("j1")
	if err != nil {
		t.Fatalf("UsageSummary: %v", err)
	}
	if by["generate_text"] != 2 || by["generate_image"] != 1 {
		t.Errorf("usage = %v", by)
	}

	if _, err := f.gallery.UsageSummary("missing"); !errors.Is(err, domain.ErrUnknownJourney) {
		t.Errorf("err = %v, want ErrUnknownJourney", err)
	}
}
