package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/remote"
	"alkemio.org/authz/internal/roleset"
)

const usageText = `usage: authz-eval <command> [flags]

commands:
  credentials -scope S -privileges P1,P2     credentials accepted for any privilege
  privileges  -scope S -role R [-privilege P] privileges held by a role
  check       -scope S -privilege P -credentials T[:resource],...
  import      -dsn DSN                        write definitions to Postgres
  scopes                                      list scopes in the definitions

every command accepts -definitions FILE (YAML); built-in definitions otherwise.
credentials and check accept -addr HOST:PORT [-token T] to ask a running
server over gRPC instead of evaluating locally.
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usageText)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		defsPath    = fs.String("definitions", os.Getenv("AUTHZ_DEFINITIONS_FILE"), "YAML role definitions")
		scope       = fs.String("scope", roleset.ScopePlatform, "definition scope")
		privileges  = fs.String("privileges", "", "comma separated privileges")
		privilege   = fs.String("privilege", "", "single privilege")
		role        = fs.String("role", "", "role name")
		credentials = fs.String("credentials", "", "comma separated TYPE[:resource] credentials")
		dsn         = fs.String("dsn", os.Getenv("AUTHZ_PG_DSN"), "PostgreSQL DSN")
		addr        = fs.String("addr", "", "gRPC address of a running server")
		token       = fs.String("token", os.Getenv("AUTHZ_TOKEN"), "bearer token for -addr")
	)
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	source, err := loadSource(*defsPath)
	if err != nil {
		return err
	}
	svc, err := access.NewService(source, access.WithPrivilegeRules(source.PrivilegeRules()...))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if *addr != "" && (cmd == "credentials" || cmd == "check") {
		return runRemote(remote.WithToken(ctx, *token), cmd, *addr, *scope, *privileges, *privilege, *credentials, out)
	}

	switch cmd {
	case "credentials":
		privs, err := access.ParsePrivileges(splitList(*privileges))
		if err != nil {
			return err
		}
		creds, err := svc.Credentials(ctx, *scope, privs)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"scope": *scope, "credentials": creds})

	case "privileges":
		r, err := authorization.ParseRoleName(*role)
		if err != nil {
			return err
		}
		if *privilege != "" {
			p, err := authorization.ParsePrivilege(*privilege)
			if err != nil {
				return err
			}
			granted, err := svc.HasRolePrivilege(ctx, *scope, r, p)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"role": r, "privilege": p, "granted": granted})
		}
		privs, err := svc.PrivilegesForRole(ctx, *scope, r)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"role": r, "privileges": privs})

	case "check":
		p, err := authorization.ParsePrivilege(*privilege)
		if err != nil {
			return err
		}
		held, err := access.ParseCredentials(parseCredentials(*credentials))
		if err != nil {
			return err
		}
		d, err := svc.Check(ctx, access.CheckRequest{Scope: *scope, Privilege: p, Actor: "cli", Credentials: held})
		if err != nil {
			return err
		}
		return printJSON(out, d)

	case "scopes":
		return printJSON(out, source.Scopes())

	case "import":
		if *dsn == "" {
			return fmt.Errorf("%w: -dsn is required", errUsage)
		}
		pg, err := roleset.OpenPostgres(*dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		for _, name := range source.Scopes() {
			defs, err := source.Definitions(ctx, name)
			if err != nil {
				return err
			}
			if err := pg.Replace(ctx, name, defs); err != nil {
				return fmt.Errorf("import %s: %w", name, err)
			}
			fmt.Fprintf(out, "imported %d roles into scope %s\n", len(defs), name)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runRemote(ctx context.Context, cmd, addr, scope, privileges, privilege, credentials string, out io.Writer) error {
	client, err := remote.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if cmd == "credentials" {
		privs, err := access.ParsePrivileges(splitList(privileges))
		if err != nil {
			return err
		}
		creds, err := client.Credentials(ctx, scope, privs)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"scope": scope, "credentials": creds})
	}

	p, err := authorization.ParsePrivilege(privilege)
	if err != nil {
		return err
	}
	var held []authorization.CredentialDescriptor
	if credentials != "" {
		held = parseCredentials(credentials)
	}
	d, err := client.Check(ctx, scope, p, held)
	if err != nil {
		return err
	}
	return printJSON(out, d)
}

func loadSource(path string) (*roleset.Static, error) {
	if path == "" {
		return roleset.Default(), nil
	}
	return roleset.LoadFile(path)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseCredentials reads TYPE or TYPE:resource entries.
func parseCredentials(raw string) []authorization.CredentialDescriptor {
	var out []authorization.CredentialDescriptor
	for _, item := range splitList(raw) {
		typ, resource, _ := strings.Cut(item, ":")
		out = append(out, authorization.CredentialDescriptor{
			Type:       authorization.CredentialType(typ),
			ResourceID: resource,
		})
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
