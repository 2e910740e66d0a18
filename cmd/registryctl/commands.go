package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/slot"
	"github.com/example/oficios-registry/internal/workspace"
)

const commandHelp = `commands:
  login <email>                          sign in; the password is read from REGISTRY_PASSWORD or stdin
  signup <email>                         create an account, then sign in when confirmed
  logout                                 end the session
  whoami                                 show the signed-in account
  years <kind>                           list the years of a kind
  create-year <kind> <ano> [quantidade]  provision a year (default 1500 slots)
  slots <kind> <ano> [-q text] [-available]
                                         list slots with a status summary
  mark <kind> <ano> <numero> [descricao] mark a slot as used
  unmark <kind> <ano> <numero>           make a used slot available again
  toggle <kind> <ano> <numero> [descricao]
                                         flip a slot between available and used
  next <kind> <ano> [descricao]          mark the lowest available slot as used
  watch <kind> <ano>                     follow changes until interrupted
  export <kind> <ano> [-o file]          write the year as an XLSX workbook

kinds: oficios, capas, oficios-circulares`

var (
	errUsage     = errors.New("invalid usage")
	errSignedOut = errors.New("sessão ausente: execute registryctl login")
)

type cli struct {
	ws     *workspace.Workspace
	client backend.Client
	in     *bufio.Reader
	out    io.Writer
	getenv func(string) string
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, rest := args[0], args[1:]

	switch name {
	case "login":
		return c.login(ctx, rest)
	case "signup":
		return c.signUp(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami()
	}

	if c.ws.Guard.Session() == nil {
		return errSignedOut
	}
	switch name {
	case "years":
		return c.years(rest)
	case "create-year":
		return c.createYear(ctx, rest)
	case "slots":
		return c.slots(ctx, rest)
	case "mark":
		return c.setStatus(ctx, rest, slot.StatusUsed)
	case "unmark":
		return c.setStatus(ctx, rest, slot.StatusAvailable)
	case "toggle":
		return c.toggle(ctx, rest)
	case "next":
		return c.next(ctx, rest)
	case "watch":
		return c.watch(ctx, rest)
	case "export":
		return c.export(ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, name)
}

func (c *cli) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: login <email>", errUsage)
	}
	password, err := c.password()
	if err != nil {
		return err
	}
	result := c.ws.Guard.SignIn(ctx, args[0], password)
	if !result.Success {
		return errors.New(result.Message)
	}
	fmt.Fprintf(c.out, "conectado como %s\n", c.ws.Guard.Email())
	return nil
}

func (c *cli) signUp(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: signup <email>", errUsage)
	}
	password, err := c.password()
	if err != nil {
		return err
	}
	result := c.ws.Guard.SignUp(ctx, args[0], password)
	if !result.Success {
		return errors.New(result.Message)
	}
	fmt.Fprintln(c.out, result.Message)
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	if c.ws.Guard.Session() == nil {
		fmt.Fprintln(c.out, "nenhuma sessão ativa")
		return nil
	}
	if result := c.ws.Guard.SignOut(ctx); !result.Success {
		return errors.New(result.Message)
	}
	fmt.Fprintln(c.out, "sessão encerrada")
	return nil
}

func (c *cli) whoami() error {
	session := c.ws.Guard.Session()
	if session == nil {
		return errSignedOut
	}
	fmt.Fprintf(c.out, "%s (expira %s)\n", session.User.Email, session.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

// password reads REGISTRY_PASSWORD or, when unset, the first line of stdin.
func (c *cli) password() (string, error) {
	if value := c.getenv("REGISTRY_PASSWORD"); value != "" {
		return value, nil
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("senha não informada")
	}
	return line, nil
}

func (c *cli) years(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: years <kind>", errUsage)
	}
	section, err := c.section(args[0])
	if err != nil {
		return err
	}
	if err := section.Registry.LastError(); err != nil {
		return fmt.Errorf("listar anos: %w", err)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ANO\tQUANTIDADE\tCRIADO EM")
	for _, year := range section.Registry.Years() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", year.Ano, quantity(section.Kind, year), year.CreatedAt.Local().Format(time.DateOnly))
	}
	return tw.Flush()
}

func (c *cli) createYear(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: create-year <kind> <ano> [quantidade]", errUsage)
	}
	section, err := c.section(args[0])
	if err != nil {
		return err
	}
	ano, err := parseNumber("ano", args[1])
	if err != nil {
		return err
	}
	quantidade := slot.DefaultQuantity
	if len(args) == 3 {
		if quantidade, err = parseNumber("quantidade", args[2]); err != nil {
			return err
		}
	}

	year, err := section.Registry.Create(ctx, ano, quantidade)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ano %d criado com %d números\n", year.Ano, quantidade)
	return nil
}

func (c *cli) slots(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: slots <kind> <ano> [-q text] [-available]", errUsage)
	}
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	query := fs.String("q", "", "filter by numero or description")
	onlyAvailable := fs.Bool("available", false, "only available slots")
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	section, err := c.bind(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	stats := section.Slots.Stats()
	fmt.Fprintf(c.out, "total %d, utilizados %d, disponíveis %d", stats.Total, stats.Used, stats.Available)
	if section.Kind.AllowsBlocked {
		fmt.Fprintf(c.out, ", bloqueados %d", stats.Blocked)
	}
	fmt.Fprintln(c.out)

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, row := range section.Slots.Filter(*query, *onlyAvailable) {
		writeSlot(tw, row)
	}
	return tw.Flush()
}

func (c *cli) setStatus(ctx context.Context, args []string, status slot.Status) error {
	maxArgs := 4
	if status != slot.StatusUsed {
		maxArgs = 3
	}
	if len(args) < 3 || len(args) > maxArgs {
		return fmt.Errorf("%w: expected <kind> <ano> <numero>", errUsage)
	}
	section, err := c.bind(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	numero, err := parseNumber("numero", args[2])
	if err != nil {
		return err
	}

	if status == slot.StatusUsed {
		descricao := ""
		if len(args) == 4 {
			descricao = args[3]
		}
		err = section.Slots.Mark(ctx, numero, descricao)
	} else {
		err = section.Slots.Unmark(ctx, numero)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "número %d: %s\n", numero, status)
	return nil
}

func (c *cli) toggle(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("%w: toggle <kind> <ano> <numero> [descricao]", errUsage)
	}
	section, err := c.bind(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	numero, err := parseNumber("numero", args[2])
	if err != nil {
		return err
	}
	descricao := ""
	if len(args) == 4 {
		descricao = args[3]
	}

	status, err := section.Slots.Toggle(ctx, numero, descricao)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "número %d: %s\n", numero, status)
	return nil
}

func (c *cli) next(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: next <kind> <ano> [descricao]", errUsage)
	}
	section, err := c.bind(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	descricao := ""
	if len(args) == 3 {
		descricao = args[2]
	}

	numero, ok, err := section.Slots.AllocateNext(ctx, descricao)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("nenhum número disponível")
	}
	fmt.Fprintf(c.out, "%d\n", numero)
	return nil
}

// watch prints every slot whose state differs from the last printed mirror
// until ctx ends.
func (c *cli) watch(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: watch <kind> <ano>", errUsage)
	}
	section, err := c.bind(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	seen := make(map[int]slot.Slot)
	for _, row := range section.Slots.Snapshot() {
		seen[row.Numero] = row
	}
	stats := section.Slots.Stats()
	fmt.Fprintf(c.out, "acompanhando %d números (%d disponíveis)\n", stats.Total, stats.Available)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-section.Slots.Changes():
		}

		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		current := make(map[int]slot.Slot)
		for _, row := range section.Slots.Snapshot() {
			current[row.Numero] = row
			if prev, ok := seen[row.Numero]; !ok || prev.UpdatedAt != row.UpdatedAt || prev.Status != row.Status {
				writeSlot(tw, row)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		seen = current
	}
}

func (c *cli) export(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: export <kind> <ano> [-o file]", errUsage)
	}
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("o", "", "destination file")
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	exporter, ok := c.client.(backend.Exporter)
	if !ok {
		return errors.New("o backend não oferece exportação")
	}
	section, err := c.section(args[0])
	if err != nil {
		return err
	}
	year, err := c.year(section, args[1])
	if err != nil {
		return err
	}

	workbook, err := exporter.ExportYear(ctx, section.Kind, year.ID)
	if err != nil {
		return err
	}
	path := *output
	if path == "" {
		path = workbook.Filename
	}
	if err := os.WriteFile(path, workbook.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(c.out, "planilha gravada em %s\n", filepath.Clean(path))
	return nil
}

func (c *cli) section(name string) (*workspace.Section, error) {
	kind, ok := slot.KindByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", errUsage, name)
	}
	return c.ws.Section(kind), nil
}

func (c *cli) year(section *workspace.Section, value string) (slot.Year, error) {
	ano, err := parseNumber("ano", value)
	if err != nil {
		return slot.Year{}, err
	}
	if err := section.Registry.LastError(); err != nil {
		return slot.Year{}, fmt.Errorf("listar anos: %w", err)
	}
	year, ok := section.Registry.Find(ano)
	if !ok {
		return slot.Year{}, fmt.Errorf("ano %d não encontrado em %s", ano, section.Kind.Label)
	}
	return year, nil
}

// bind resolves kind and ano and loads that year into the kind's collection.
func (c *cli) bind(ctx context.Context, kindName, ano string) (*workspace.Section, error) {
	section, err := c.section(kindName)
	if err != nil {
		return nil, err
	}
	year, err := c.year(section, ano)
	if err != nil {
		return nil, err
	}
	if err := section.Slots.Bind(ctx, year.ID); err != nil {
		return nil, err
	}
	return section, nil
}

func writeSlot(w io.Writer, row slot.Slot) {
	markedAt := "-"
	if row.MarkedAt != nil {
		markedAt = row.MarkedAt.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", row.Numero, row.Status, markedAt, deref(row.Descricao), deref(row.Usuario))
}

func quantity(kind slot.Kind, year slot.Year) string {
	if kind.TracksQuantity {
		return strconv.Itoa(year.Quantidade)
	}
	if year.Ativo {
		return "ativo"
	}
	return "inativo"
}

func parseNumber(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", errUsage, field, value)
	}
	return n, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
