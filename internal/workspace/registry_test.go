package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/example/oficios-registry/internal/slot"
)

func TestRegistryCreateValidatesBeforeWriting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	registry := NewRegistry(slot.Oficios, client, nil)

	if _, err := registry.Create(ctx, 2024, 5); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name       string
		ano        int
		quantidade int
		field      string
	}{
		{name: "year below range", ano: 1999, quantidade: 10, field: "ano"},
		{name: "year above range", ano: 2101, quantidade: 10, field: "ano"},
		{name: "no slots", ano: 2030, quantidade: 0, field: "quantidade"},
		{name: "too many slots", ano: 2030, quantidade: 10000, field: "quantidade"},
		{name: "already loaded", ano: 2024, quantidade: 10, field: "ano"},
	}

	for _, tc := range tests {
		_, err := registry.Create(ctx, tc.ano, tc.quantidade)
		var vErr *slot.ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
			t.Fatalf("%s: expected a %s validation error, got %v", tc.name, tc.field, err)
		}
	}

	if provision, _, _ := client.counts(); provision != 1 {
		t.Fatalf("expected rejected requests to issue no write, got %d provision calls", provision)
	}
}

func TestRegistryListsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	registry := NewRegistry(slot.OficiosCirculares, signedInClient(t, app, "servidor@example.com"), nil)

	for _, ano := range []int{2023, 2025, 2024} {
		year, err := registry.Create(ctx, ano, 1)
		if err != nil {
			t.Fatalf("Create %d failed: %v", ano, err)
		}
		if year.Ano != ano || year.Quantidade != 1 {
			t.Fatalf("unexpected year %+v", year)
		}
	}

	years := registry.Years()
	if len(years) != 3 || years[0].Ano != 2025 || years[1].Ano != 2024 || years[2].Ano != 2023 {
		t.Fatalf("expected years in descending order, got %+v", years)
	}
	if found, ok := registry.Find(2024); !ok || found.ID != years[1].ID {
		t.Fatalf("Find(2024) returned %+v, %v", found, ok)
	}
	if registry.Loading() {
		t.Fatalf("expected no refresh in progress")
	}
}

func TestRegistryRefreshFailureKeepsList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	client := &instrumentedClient{Client: signedInClient(t, app, "servidor@example.com")}
	registry := NewRegistry(slot.Capas, client, nil)

	if _, err := registry.Create(ctx, 2025, 1); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	failure := errors.New("connection reset")
	client.set(func(c *instrumentedClient) { c.listYearsErr = failure })
	registry.Refresh(ctx)

	if !errors.Is(registry.LastError(), failure) {
		t.Fatalf("expected the failure to be recorded, got %v", registry.LastError())
	}
	if len(registry.Years()) != 1 {
		t.Fatalf("expected the previous list to survive, got %+v", registry.Years())
	}

	client.set(func(c *instrumentedClient) { c.listYearsErr = nil })
	registry.Refresh(ctx)
	if registry.LastError() != nil {
		t.Fatalf("expected a successful refresh to clear the error")
	}
}

func TestRegistryCreatePropagatesWriteErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := openApp(t)
	other := NewRegistry(slot.Oficios, signedInClient(t, app, "outro@example.com"), nil)
	registry := NewRegistry(slot.Oficios, signedInClient(t, app, "servidor@example.com"), nil)

	// The second registry has not loaded the year created by the first one.
	if _, err := other.Create(ctx, 2025, 1); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := registry.Create(ctx, 2025, 1); err == nil {
		t.Fatalf("expected the duplicate write to fail")
	}
}
