// Package admincli implements careadmin, the operator command line for the
// identity store.
//
// Usage:
//
//	careadmin [--config file] [--json] <command> [flags]
//
// Commands:
//
//	migrate                         apply pending schema migrations
//	seed                            create the development test accounts
//	create-user -email -name -role  create an identity (password generated when omitted)
//	activate -email                 re-enable an identity
//	deactivate -email               disable an identity and end all of its access
//	verify -email [-unset]          set or clear the verified flag
//	set-role -email -role           change an identity's role
//	list [-offset] [-limit]         list identities
//	delete -email                   end all access and remove an identity
//	prune                           delete expired browser sessions
//	gen-key [-alg] [-out]           write a new PEM signing key
package admincli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jrsteele09/care-auth-server/auth"
	"github.com/jrsteele09/care-auth-server/internal/app"
	"github.com/jrsteele09/care-auth-server/internal/config"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/logging"
	"github.com/jrsteele09/care-auth-server/token"
	"github.com/jrsteele09/care-auth-server/users"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type command struct {
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
	// standalone commands run without opening storage.
	standalone bool
}

var commands = map[string]command{
	"migrate":     {"apply pending schema migrations", runMigrate, false},
	"seed":        {"create the development test accounts", runSeed, false},
	"create-user": {"create an identity", runCreateUser, false},
	"activate":    {"re-enable an identity", runSetActive(true), false},
	"deactivate":  {"disable an identity and end all of its access", runSetActive(false), false},
	"verify":      {"set or clear the verified flag", runVerify, false},
	"set-role":    {"change an identity's role", runSetRole, false},
	"list":        {"list identities", runList, false},
	"delete":      {"end all access and remove an identity", runDelete, false},
	"prune":       {"delete expired browser sessions", runPrune, false},
	"gen-key":     {"write a new PEM signing key for TOKEN_SIGNING_KEY_FILE", runGenKey, true},
}

// errUsage marks errors that should print usage and exit with ExitUsage.
var errUsage = errors.New("usage")

type cli struct {
	stdout io.Writer
	stderr io.Writer
	json   bool
	app    *app.App
}

// Run executes one careadmin command and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("careadmin", flag.ContinueOnError)
	global.SetOutput(stderr)
	configFile := global.String("config", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	asJSON := global.Bool("json", false, "write machine-readable JSON")
	logLevel := global.String("log-level", "warn", "log level for service messages")
	global.Usage = func() { printUsage(stderr) }

	if err := global.Parse(args); err != nil {
		return ExitUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return ExitUsage
	}
	name := rest[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintln(stderr, errorStyle.Render("unknown command: "+name))
		printUsage(stderr)
		return ExitUsage
	}

	logging.Configure(stderr, "PROD", *logLevel)

	if cmd.standalone {
		c := &cli{stdout: stdout, stderr: stderr, json: *asJSON}
		return c.exit(name, cmd.run(ctx, c, rest[1:]))
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("configuration: "+err.Error()))
		return ExitError
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		return ExitError
	}
	defer a.Close()

	c := &cli{stdout: stdout, stderr: stderr, json: *asJSON, app: a}
	return c.exit(name, cmd.run(ctx, c, rest[1:]))
}

func (c *cli) exit(command string, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage):
		return ExitUsage
	default:
		c.fail(command, err)
		return ExitError
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.New()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("careadmin")+" [--config file] [--json] <command> [flags]")
	fmt.Fprintln(w)

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(name), dimStyle.Render(commands[name].summary))
	}
}

// flags returns a subcommand flag set that reports errors through errUsage.
func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	for _, name := range required {
		if fs.Lookup(name).Value.String() == "" {
			fmt.Fprintln(c.stderr, errorStyle.Render("missing -"+name))
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

type result struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (c *cli) ok(command, message string, data any) error {
	if c.json {
		return c.writeJSON(result{Success: true, Command: command, Message: message, Data: data})
	}
	_, err := fmt.Fprintln(c.stdout, successStyle.Render("✓ ")+message)
	return err
}

func (c *cli) fail(command string, err error) {
	message := err.Error()
	if fields := auth.FieldErrorsFor(err); fields != nil {
		message = fields.Error()
	}
	if c.json {
		_ = c.writeJSON(result{Command: command, Error: message})
		return
	}
	fmt.Fprintln(c.stderr, errorStyle.Render("✗ ")+message)
}

func (c *cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userByEmail resolves the identity a command addresses.
func (c *cli) userByEmail(ctx context.Context, email string) (*users.User, error) {
	user, err := c.app.Auth.UserByEmail(ctx, email)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("no user with email %q", users.NormalizeEmail(email))
	}
	return user, err
}

func runMigrate(ctx context.Context, c *cli, args []string) error {
	if err := c.parse(c.flags("migrate"), args); err != nil {
		return err
	}
	if c.app.DB == nil {
		return c.ok("migrate", "memory storage has no schema", nil)
	}
	// Build has already migrated; a second pass is a no-op.
	if err := c.app.DB.Migrate(ctx); err != nil {
		return err
	}
	return c.ok("migrate", "schema is up to date", map[string]string{"driver": c.app.Config.GetStorageDriver()})
}

func runSeed(ctx context.Context, c *cli, args []string) error {
	if err := c.parse(c.flags("seed"), args); err != nil {
		return err
	}
	created, err := c.app.Auth.SeedTestUsers(ctx)
	if err != nil {
		return err
	}

	type seeded struct {
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Role     users.Role `json:"role"`
	}
	out := make([]seeded, 0, len(created))
	for _, tu := range created {
		out = append(out, seeded{Email: tu.Email, Password: tu.Password, Role: tu.Role})
	}
	if !c.json {
		for _, s := range out {
			fmt.Fprintf(c.stdout, "  %s %s %s\n", labelStyle.Render(string(s.Role)), s.Email, dimStyle.Render(s.Password))
		}
	}
	return c.ok("seed", fmt.Sprintf("created %d test accounts", len(out)), out)
}

func runCreateUser(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("create-user")
	email := fs.String("email", "", "email address (login key)")
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	role := fs.String("role", string(users.DefaultRole), "patient, clinician or organization")
	password := fs.String("password", "", "password; generated when empty")
	verified := fs.Bool("verified", false, "mark the identity verified")
	if err := c.parse(fs, args, "email", "name"); err != nil {
		return err
	}

	generated := ""
	if *password == "" {
		p, err := auth.GeneratePassword()
		if err != nil {
			return err
		}
		*password, generated = p, p
	}

	user, err := c.app.Auth.Register(ctx, auth.RegistrationRequest{
		FullName:        *name,
		Email:           *email,
		Phone:           *phone,
		Password:        *password,
		ConfirmPassword: *password,
		Role:            *role,
	})
	if err != nil {
		return err
	}
	if *verified {
		if err := c.app.Auth.SetVerified(ctx, user.ID, true); err != nil {
			return err
		}
	}

	data := map[string]string{"id": user.ID, "email": user.Email, "role": string(user.Role)}
	if generated != "" {
		data["password"] = generated
		if !c.json {
			fmt.Fprintf(c.stdout, "  %s %s\n", labelStyle.Render("password"), generated)
		}
	}
	return c.ok("create-user", fmt.Sprintf("created %s (%s)", user.Email, user.Role.Label()), data)
}

func runSetActive(active bool) func(context.Context, *cli, []string) error {
	name, verb := "activate", "activated"
	if !active {
		name, verb = "deactivate", "deactivated"
	}
	return func(ctx context.Context, c *cli, args []string) error {
		fs := c.flags(name)
		email := fs.String("email", "", "email address")
		if err := c.parse(fs, args, "email"); err != nil {
			return err
		}
		user, err := c.userByEmail(ctx, *email)
		if err != nil {
			return err
		}
		if err := c.app.Auth.SetActive(ctx, user.ID, active); err != nil {
			return err
		}
		return c.ok(name, fmt.Sprintf("%s %s", verb, user.Email), map[string]any{"id": user.ID, "active": active})
	}
}

func runVerify(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("verify")
	email := fs.String("email", "", "email address")
	unset := fs.Bool("unset", false, "clear the verified flag instead")
	if err := c.parse(fs, args, "email"); err != nil {
		return err
	}
	user, err := c.userByEmail(ctx, *email)
	if err != nil {
		return err
	}
	if err := c.app.Auth.SetVerified(ctx, user.ID, !*unset); err != nil {
		return err
	}
	state := "verified"
	if *unset {
		state = "unverified"
	}
	return c.ok("verify", fmt.Sprintf("%s is %s", user.Email, state), map[string]any{"id": user.ID, "verified": !*unset})
}

func runSetRole(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("set-role")
	email := fs.String("email", "", "email address")
	roleName := fs.String("role", "", "patient, clinician or organization")
	if err := c.parse(fs, args, "email", "role"); err != nil {
		return err
	}
	role, err := users.ParseRole(*roleName)
	if err != nil {
		return err
	}
	user, err := c.userByEmail(ctx, *email)
	if err != nil {
		return err
	}
	if err := c.app.Auth.ChangeRole(ctx, user.ID, role); err != nil {
		return err
	}
	return c.ok("set-role", fmt.Sprintf("%s is now %s", user.Email, role.Label()), map[string]string{"id": user.ID, "role": string(role)})
}

func runList(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("list")
	offset := fs.Int("offset", 0, "rows to skip")
	limit := fs.Int("limit", 50, "rows to return; 0 for all")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	list, err := c.app.Auth.ListUsers(ctx, *offset, *limit)
	if err != nil {
		return err
	}

	if c.json {
		profiles := make([]*auth.Profile, 0, len(list.Users))
		for _, u := range list.Users {
			profiles = append(profiles, c.app.Auth.ProfileOf(u))
		}
		return c.writeJSON(result{Success: true, Command: "list", Data: map[string]any{
			"users": profiles, "total": list.Total, "offset": list.Offset, "limit": list.Limit,
		}})
	}

	fmt.Fprintln(c.stdout, titleStyle.Render(fmt.Sprintf("%d of %d identities", len(list.Users), list.Total)))
	for _, u := range list.Users {
		fmt.Fprintf(c.stdout, "  %s %-32s %s\n", labelStyle.Render(string(u.Role)), u.Email, dimStyle.Render(flagsOf(u)))
	}
	return nil
}

func flagsOf(u *users.User) string {
	var parts []string
	if !u.Active {
		parts = append(parts, "inactive")
	}
	if u.Verified {
		parts = append(parts, "verified")
	}
	return strings.Join(parts, ",")
}

func runDelete(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("delete")
	email := fs.String("email", "", "email address")
	if err := c.parse(fs, args, "email"); err != nil {
		return err
	}
	user, err := c.userByEmail(ctx, *email)
	if err != nil {
		return err
	}
	if err := c.app.Auth.DeleteUser(ctx, user.ID); err != nil {
		return err
	}
	return c.ok("delete", "deleted "+user.Email, map[string]string{"id": user.ID})
}

func runPrune(ctx context.Context, c *cli, args []string) error {
	if err := c.parse(c.flags("prune"), args); err != nil {
		return err
	}
	n, err := c.app.PruneExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	return c.ok("prune", fmt.Sprintf("removed %d expired sessions", n), map[string]int64{"removed": n})
}

func runGenKey(_ context.Context, c *cli, args []string) error {
	fs := c.flags("gen-key")
	alg := fs.String("alg", "ES256", "RS256, RS384, RS512, ES256, ES384 or ES512")
	out := fs.String("out", "", "file to write; stdout when empty")
	if err := c.parse(fs, args); err != nil {
		return err
	}

	kp, err := token.GenerateKeyPair(*alg)
	if err != nil {
		return err
	}
	pemData, err := kp.EncodePrivateKeyPEM()
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = c.stdout.Write(pemData)
		return err
	}
	if err := os.WriteFile(*out, pemData, 0o600); err != nil {
		return err
	}
	return c.ok("gen-key", fmt.Sprintf("wrote %s key %s to %s", kp.Algorithm, kp.KeyID, *out),
		map[string]string{"alg": kp.Algorithm, "kid": kp.KeyID, "path": *out})
}
