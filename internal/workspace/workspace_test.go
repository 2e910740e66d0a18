package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/backend/local"
	"github.com/example/oficios-registry/internal/server"
	"github.com/example/oficios-registry/internal/slot"
	"github.com/example/oficios-registry/internal/testfixtures"
)

const testPassword = "segredo"

func openApp(t *testing.T) *server.App {
	t.Helper()
	return testfixtures.App(t)
}

// signedInClient returns a local client with a fresh account signed in.
func signedInClient(t *testing.T, app *server.App, email string) *local.Client {
	t.Helper()

	client := local.New(app)
	if _, err := client.SignUp(context.Background(), email, testPassword, ""); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return client
}

func startWorkspace(t *testing.T, client backend.Client) *Workspace {
	t.Helper()

	w := New(client)
	w.Start(context.Background())
	t.Cleanup(w.Close)
	return w
}

// instrumentedClient counts store calls and injects failures.
type instrumentedClient struct {
	backend.Client

	mu             sync.Mutex
	listYearsErr   error
	listSlotsErr   error
	updateErr      error
	provisionCalls int
	listSlotsCalls int
	updateCalls    int
	updateGate     chan struct{}
}

func (c *instrumentedClient) ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error) {
	c.mu.Lock()
	err := c.listYearsErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Client.ListYears(ctx, kind)
}

func (c *instrumentedClient) ProvisionYear(ctx context.Context, kind slot.Kind, ano, quantidade int) (slot.Year, error) {
	c.mu.Lock()
	c.provisionCalls++
	c.mu.Unlock()
	return c.Client.ProvisionYear(ctx, kind, ano, quantidade)
}

func (c *instrumentedClient) ListSlots(ctx context.Context, kind slot.Kind, yearID string, from, to int) ([]slot.Slot, error) {
	c.mu.Lock()
	c.listSlotsCalls++
	err := c.listSlotsErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Client.ListSlots(ctx, kind, yearID, from, to)
}

func (c *instrumentedClient) UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch) (slot.Slot, error) {
	c.mu.Lock()
	c.updateCalls++
	err := c.updateErr
	gate := c.updateGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return slot.Slot{}, err
	}
	return c.Client.UpdateSlot(ctx, kind, id, patch)
}

func (c *instrumentedClient) counts() (provision, listSlots, update int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provisionCalls, c.listSlotsCalls, c.updateCalls
}

func (c *instrumentedClient) set(fn func(c *instrumentedClient)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// waitFor blocks until cond holds, re-checking whenever the collection
// reports a change.
func waitFor(t *testing.T, slots *Slots, what string, cond func() bool) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-slots.Changes():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestWorkspaceFollowsIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)

	seed := signedInClient(t, app, "outro@example.com")
	if _, err := seed.ProvisionYear(ctx, slot.Oficios, 2024, 2); err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}

	w := startWorkspace(t, local.New(app))
	oficios := w.Section(slot.Oficios)
	if w.Guard.Session() != nil || len(oficios.Registry.Years()) != 0 {
		t.Fatalf("expected a signed out workspace with no years")
	}
	if len(w.Sections()) != 3 {
		t.Fatalf("expected one section per kind, got %d", len(w.Sections()))
	}

	if result := w.Guard.SignUp(ctx, "servidor@example.com", testPassword); !result.Success {
		t.Fatalf("SignUp failed: %+v", result)
	}
	years := oficios.Registry.Years()
	if len(years) != 1 || years[0].Ano != 2024 {
		t.Fatalf("expected the registries to refresh on sign in, got %+v", years)
	}

	if err := oficios.Slots.Bind(ctx, years[0].ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if app.Broker.Subscribers(slot.Oficios, years[0].ID) != 1 {
		t.Fatalf("expected one live subscription")
	}

	if result := w.Guard.SignOut(ctx); !result.Success {
		t.Fatalf("SignOut failed: %+v", result)
	}
	if oficios.Slots.YearID() != "" || len(oficios.Slots.Snapshot()) != 0 {
		t.Fatalf("expected the slots to be unbound on sign out")
	}
	if len(oficios.Registry.Years()) != 0 {
		t.Fatalf("expected the registry to be cleared on sign out")
	}
	if app.Broker.Subscribers(slot.Oficios, years[0].ID) != 0 {
		t.Fatalf("expected the subscription to be released")
	}
}

func TestWorkspaceStartsSignedIn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := signedInClient(t, app, "servidor@example.com")
	year, err := client.ProvisionYear(ctx, slot.Capas, 2025, 4)
	if err != nil {
		t.Fatalf("ProvisionYear failed: %v", err)
	}

	w := New(client)
	w.Start(ctx)

	capas := w.Section(slot.Capas)
	if got := capas.Registry.Years(); len(got) != 1 || got[0].ID != year.ID {
		t.Fatalf("expected the registry to load on start, got %+v", got)
	}
	if err := capas.Slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	w.Close()
	if app.Broker.Subscribers(slot.Capas, year.ID) != 0 {
		t.Fatalf("expected Close to release every subscription")
	}
	if w.Section(slot.Kind{Name: "unknown"}) != nil {
		t.Fatalf("expected no section for an unknown kind")
	}
}

func TestWorkspaceRecordsActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := signedInClient(t, app, "servidor@example.com")
	w := startWorkspace(t, client)

	for _, kind := range []slot.Kind{slot.Oficios, slot.Capas} {
		section := w.Section(kind)
		year, err := section.Registry.Create(ctx, 2025, 2)
		if err != nil {
			t.Fatalf("%s: Create failed: %v", kind.Name, err)
		}
		if err := section.Slots.Bind(ctx, year.ID); err != nil {
			t.Fatalf("%s: Bind failed: %v", kind.Name, err)
		}
		if _, ok, err := section.Slots.AllocateNext(ctx, "registro"); err != nil || !ok {
			t.Fatalf("%s: AllocateNext returned %v, %v", kind.Name, ok, err)
		}

		row, _ := section.Slots.Find(1)
		if kind.RecordsActor {
			if row.Usuario == nil || *row.Usuario != "servidor@example.com" {
				t.Fatalf("%s: expected the actor to be recorded, got %+v", kind.Name, row)
			}
		} else if row.Usuario != nil {
			t.Fatalf("%s: expected no actor, got %q", kind.Name, *row.Usuario)
		}
	}
}

func TestWorkspaceSessionLossUnbinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := signedInClient(t, app, "servidor@example.com")
	w := startWorkspace(t, client)

	oficios := w.Section(slot.Oficios)
	year, err := oficios.Registry.Create(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := oficios.Slots.Bind(ctx, year.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	session := w.Guard.Session()
	if err := app.Auth.RevokeSession(ctx, session.AccessToken); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}

	err = oficios.Slots.SetStatus(ctx, 1, slot.StatusUsed, "")
	if !errors.Is(err, backend.ErrNoSession) {
		t.Fatalf("expected ErrNoSession once the session is revoked, got %v", err)
	}

	current, err := client.GetSession(ctx)
	if err != nil || current != nil {
		t.Fatalf("expected the revoked session to be dropped, got %+v, %v", current, err)
	}
	if w.Guard.Session() != nil {
		t.Fatalf("expected the guard to mirror the sign out")
	}
	if oficios.Slots.YearID() != "" {
		t.Fatalf("expected the slots to be unbound after the session was lost")
	}
}
