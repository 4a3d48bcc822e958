package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/marcus/formsync/internal/api"
	"github.com/marcus/formsync/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-user":
		runAdminCreateUser(args[1:])
	case "list-users":
		runAdminListUsers(args[1:])
	case "create-key":
		runAdminCreateKey(args[1:])
	case "list-keys":
		runAdminListKeys(args[1:])
	case "revoke-key":
		runAdminRevokeKey(args[1:])
	case "rate-limits":
		runAdminRateLimits(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: formsync-server admin <command> [flags]

Commands:
  create-user  Create a user and print a first API key
  list-users   List registered users
  create-key   Create an API key for an existing user
  list-keys    List a user's API keys
  revoke-key   Revoke an API key
  rate-limits  Show recent rate-limited requests`)
}

const dbFlagUsage = "path to the server database (default: from FORMSYNC_DB_PATH or ./data/formsync.db)"

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("admin "+name, pflag.ExitOnError)
	dbPath := fs.String("db", "", dbFlagUsage)
	return fs, dbPath
}

func openDB(dbPath string) *serverdb.ServerDB {
	cfg := api.LoadConfig()
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	store, err := serverdb.OpenWithDriver(cfg.DBDriver, dbPath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return store
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func requireFlag(fs *pflag.FlagSet, name, value string) {
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(os.Stderr, "error: --%s is required\n", name)
		fs.Usage()
		os.Exit(1)
	}
}

func mustUser(store *serverdb.ServerDB, email string) *serverdb.User {
	user, err := store.GetUserByEmail(email)
	if err != nil {
		fatalf("%v", err)
	}
	if user == nil {
		fatalf("user not found: %s", email)
	}
	return user
}

func printKey(email, plaintext string, ak *serverdb.APIKey) {
	fmt.Printf("created API key for %s\n", email)
	fmt.Printf("  id:   %s\n", ak.ID)
	fmt.Printf("  name: %s\n", ak.Name)
	if ak.ExpiresAt != nil {
		fmt.Printf("  expires: %s\n", ak.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("  key:  %s\n", plaintext)
	fmt.Println("\nSave this key now -- it will not be shown again.")
}

func runAdminCreateUser(args []string) {
	fs, dbPath := newFlagSet("create-user")
	email := fs.String("email", "", "user email address")
	name := fs.String("name", "", "display name")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath)
	defer store.Close()

	existing, err := store.GetUserByEmail(*email)
	if err != nil {
		fatalf("%v", err)
	}
	if existing != nil {
		fatalf("user already exists: %s", existing.Email)
	}

	user, err := store.CreateUser(*email, *name)
	if err != nil {
		fatalf("%v", err)
	}
	plaintext, ak, err := store.GenerateAPIKey(user.ID, "default", nil)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("created user %s (%s)\n", user.Email, user.ID)
	printKey(user.Email, plaintext, ak)
}

func runAdminListUsers(args []string) {
	fs, dbPath := newFlagSet("list-users")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		fatalf("%v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02"))
	}
	tw.Flush()
}

func runAdminCreateKey(args []string) {
	fs, dbPath := newFlagSet("create-key")
	email := fs.String("email", "", "user email address")
	name := fs.String("name", "cli", "key name")
	expires := fs.Duration("expires", 0, "key lifetime, e.g. 720h (default: never)")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath)
	defer store.Close()

	user := mustUser(store, *email)

	var expiresAt *time.Time
	if *expires > 0 {
		t := time.Now().UTC().Add(*expires)
		expiresAt = &t
	}

	plaintext, ak, err := store.GenerateAPIKey(user.ID, *name, expiresAt)
	if err != nil {
		fatalf("%v", err)
	}
	printKey(user.Email, plaintext, ak)
}

func runAdminListKeys(args []string) {
	fs, dbPath := newFlagSet("list-keys")
	email := fs.String("email", "", "user email address")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath)
	defer store.Close()

	user := mustUser(store, *email)
	keys, err := store.ListAPIKeys(user.ID)
	if err != nil {
		fatalf("%v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tLAST USED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.KeyPrefix, fmtTime(k.LastUsedAt), fmtTime(k.ExpiresAt))
	}
	tw.Flush()
}

func runAdminRevokeKey(args []string) {
	fs, dbPath := newFlagSet("revoke-key")
	email := fs.String("email", "", "email of the key's owner")
	id := fs.String("id", "", "API key ID (see list-keys)")
	fs.Parse(args)
	requireFlag(fs, "email", *email)
	requireFlag(fs, "id", *id)

	store := openDB(*dbPath)
	defer store.Close()

	user := mustUser(store, *email)
	if err := store.RevokeAPIKey(*id, user.ID); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("revoked key %s for %s\n", *id, user.Email)
}

func runAdminRateLimits(args []string) {
	fs, dbPath := newFlagSet("rate-limits")
	keyID := fs.String("key", "", "only events for this API key ID")
	ip := fs.String("ip", "", "only events from this IP")
	limit := fs.IntP("limit", "n", 50, "number of events to show")
	cursor := fs.String("cursor", "", "continue after this cursor")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	page, err := store.QueryRateLimitEvents(*keyID, *ip, *limit, *cursor)
	if err != nil {
		fatalf("%v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCLASS\tIP\tKEY")
	for _, e := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt, e.EndpointClass, e.IP, e.KeyID)
	}
	tw.Flush()
	if page.HasMore {
		fmt.Printf("\nmore: --cursor %s\n", page.NextCursor)
	}
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
