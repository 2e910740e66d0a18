package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/oficios-registry/internal/backend/local"
	"github.com/example/oficios-registry/internal/credentials"
	"github.com/example/oficios-registry/internal/server"
	"github.com/example/oficios-registry/internal/slot"
	"github.com/example/oficios-registry/internal/testfixtures"
	"github.com/example/oficios-registry/internal/workspace"
)

// harness runs each command the way separate registryctl invocations would:
// a fresh client and workspace sharing one database and credential file.
type harness struct {
	t        *testing.T
	app      *server.App
	creds    string
	password string
	logger   *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := testfixtures.App(t, testfixtures.WithLogger(logger))

	return &harness{t: t, app: app, creds: filepath.Join(dir, "credentials.toml"), password: "segredo", logger: logger}
}

func (h *harness) command(ctx context.Context, out io.Writer, stdin string, args ...string) error {
	client := local.New(h.app, local.WithCredentials(credentials.NewFile(h.creds)), local.WithLogger(h.logger))
	ws := workspace.New(client, workspace.WithLogger(h.logger))
	ws.Start(ctx)
	defer ws.Close()

	c := &cli{
		ws:     ws,
		client: client,
		in:     bufio.NewReader(strings.NewReader(stdin)),
		out:    out,
		getenv: func(key string) string {
			if key == "REGISTRY_PASSWORD" {
				return h.password
			}
			return ""
		},
	}
	return c.run(ctx, args)
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	err := h.command(context.Background(), &out, "", args...)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

func TestCLISessionCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	if _, err := h.run("whoami"); !errors.Is(err, errSignedOut) {
		t.Fatalf("expected errSignedOut before signing in, got %v", err)
	}
	if _, err := h.run("years", "oficios"); !errors.Is(err, errSignedOut) {
		t.Fatalf("expected data commands to require a session, got %v", err)
	}

	if out := h.mustRun("signup", "servidor@example.com"); !strings.Contains(out, "Conta criada com sucesso!") {
		t.Fatalf("unexpected signup output %q", out)
	}
	if out := h.mustRun("whoami"); !strings.HasPrefix(out, "servidor@example.com") {
		t.Fatalf("expected the stored session to be restored, got %q", out)
	}
	if _, err := h.run("signup", "servidor@example.com"); err == nil || err.Error() != "Este email já está cadastrado" {
		t.Fatalf("expected duplicate signup message, got %v", err)
	}

	if out := h.mustRun("logout"); !strings.Contains(out, "sessão encerrada") {
		t.Fatalf("unexpected logout output %q", out)
	}
	if _, err := os.Stat(h.creds); !os.IsNotExist(err) {
		t.Fatalf("expected the credential file to be removed, got %v", err)
	}
	if out := h.mustRun("logout"); !strings.Contains(out, "nenhuma sessão ativa") {
		t.Fatalf("expected a second logout to be harmless, got %q", out)
	}

	h.password = "errada"
	if _, err := h.run("login", "servidor@example.com"); err == nil || err.Error() != "Email ou senha incorretos" {
		t.Fatalf("expected invalid credentials message, got %v", err)
	}

	h.password = ""
	var out bytes.Buffer
	if err := h.command(context.Background(), &out, "segredo\n", "login", "servidor@example.com"); err != nil {
		t.Fatalf("login with the password on stdin failed: %v", err)
	}
	if !strings.Contains(out.String(), "conectado como servidor@example.com") {
		t.Fatalf("unexpected login output %q", out.String())
	}
}

func TestCLISlotCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mustRun("signup", "servidor@example.com")

	if _, err := h.run("create-year", "oficios", "1999", "3"); err == nil {
		t.Fatalf("expected an out of range year to be rejected")
	}
	if out := h.mustRun("create-year", "oficios", "2025", "3"); !strings.Contains(out, "ano 2025 criado com 3 números") {
		t.Fatalf("unexpected create-year output %q", out)
	}
	if _, err := h.run("create-year", "oficios", "2025", "3"); err == nil {
		t.Fatalf("expected a duplicate year to be rejected")
	}
	if out := h.mustRun("years", "oficios"); !strings.Contains(out, "2025") {
		t.Fatalf("expected 2025 in %q", out)
	}

	if out := h.mustRun("next", "oficios", "2025", "memorando"); strings.TrimSpace(out) != "1" {
		t.Fatalf("expected slot 1, got %q", out)
	}
	h.mustRun("mark", "oficios", "2025", "3", "portaria")

	out := h.mustRun("slots", "oficios", "2025")
	if !strings.Contains(out, "total 3, utilizados 2, disponíveis 1, bloqueados 0") {
		t.Fatalf("unexpected stats in %q", out)
	}
	if !strings.Contains(out, "portaria") || !strings.Contains(out, "servidor@example.com") {
		t.Fatalf("expected description and actor in %q", out)
	}

	out = h.mustRun("slots", "oficios", "2025", "-available")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 || !strings.HasPrefix(lines[1], "2 ") {
		t.Fatalf("expected only slot 2 to be listed, got %q", out)
	}

	if out := h.mustRun("toggle", "oficios", "2025", "1"); !strings.Contains(out, "número 1: disponivel") {
		t.Fatalf("unexpected toggle output %q", out)
	}
	h.mustRun("unmark", "oficios", "2025", "3")
	if out := h.mustRun("next", "oficios", "2025"); strings.TrimSpace(out) != "1" {
		t.Fatalf("expected slot 1 to be reused, got %q", out)
	}

	if _, err := h.run("mark", "oficios", "2025", "9"); !errors.Is(err, workspace.ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", err)
	}
	if _, err := h.run("slots", "oficios", "2030"); err == nil || !strings.Contains(err.Error(), "não encontrado") {
		t.Fatalf("expected an unknown year error, got %v", err)
	}
	if _, err := h.run("slots", "memorandos", "2025"); !errors.Is(err, errUsage) {
		t.Fatalf("expected an unknown kind to be a usage error, got %v", err)
	}
	if _, err := h.run("frobnicate"); !errors.Is(err, errUsage) {
		t.Fatalf("expected an unknown command to be a usage error, got %v", err)
	}

	h.mustRun("create-year", "capas", "2025", "1")
	h.mustRun("next", "capas", "2025")
	if _, err := h.run("next", "capas", "2025"); err == nil || !strings.Contains(err.Error(), "nenhum número disponível") {
		t.Fatalf("expected an exhausted year error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "oficios.xlsx")
	if out := h.mustRun("export", "oficios", "2025", "-o", path); !strings.Contains(out, path) {
		t.Fatalf("unexpected export output %q", out)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected a workbook at %s, got %v", path, err)
	}
}

func TestCLIRejectsToggleOfBlockedSlot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mustRun("signup", "servidor@example.com")
	h.mustRun("create-year", "oficios-circulares", "2025", "2")

	ctx := context.Background()
	client := local.New(h.app, local.WithCredentials(credentials.NewFile(h.creds)), local.WithLogger(h.logger))
	years, err := client.ListYears(ctx, slot.OficiosCirculares)
	if err != nil || len(years) != 1 {
		t.Fatalf("ListYears returned %v, %v", years, err)
	}
	rows, err := client.ListSlots(ctx, slot.OficiosCirculares, years[0].ID, 1, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListSlots returned %v, %v", rows, err)
	}
	if _, err := client.UpdateSlot(ctx, slot.OficiosCirculares, rows[1].ID, slot.Patch{Status: slot.StatusBlocked}); err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}

	for _, args := range [][]string{
		{"toggle", "oficios-circulares", "2025", "2"},
		{"mark", "oficios-circulares", "2025", "2"},
	} {
		if _, err := h.run(args...); !errors.Is(err, slot.ErrBlocked) {
			t.Fatalf("%v: expected ErrBlocked, got %v", args, err)
		}
	}
	if out := h.mustRun("next", "oficios-circulares", "2025"); strings.TrimSpace(out) != "1" {
		t.Fatalf("expected the blocked slot to be skipped, got %q", out)
	}
}

func TestCLIMarkRequiresAnAvailableSlot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mustRun("signup", "servidor@example.com")
	h.mustRun("create-year", "oficios", "2025", "2")

	h.mustRun("mark", "oficios", "2025", "1", "original")
	if _, err := h.run("mark", "oficios", "2025", "1", "sobrescrito"); !errors.Is(err, slot.ErrInvalidTransition) {
		t.Fatalf("expected a second mark to be rejected, got %v", err)
	}
	if _, err := h.run("unmark", "oficios", "2025", "2"); !errors.Is(err, slot.ErrInvalidTransition) {
		t.Fatalf("expected unmark of an available slot to be rejected, got %v", err)
	}

	out := h.mustRun("slots", "oficios", "2025")
	if !strings.Contains(out, "original") || strings.Contains(out, "sobrescrito") {
		t.Fatalf("expected the first description to survive, got %q", out)
	}
	if !strings.Contains(out, "total 2, utilizados 1, disponíveis 1") {
		t.Fatalf("unexpected stats in %q", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCLIWatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mustRun("signup", "servidor@example.com")
	h.mustRun("create-year", "oficios", "2025", "5")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- h.command(ctx, out, "", "watch", "oficios", "2025") }()

	waitOutput := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q in %q", want, out.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitOutput("acompanhando 5 números (5 disponíveis)")

	h.mustRun("next", "oficios", "2025", "empenho")
	waitOutput("empenho")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}
