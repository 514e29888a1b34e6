// Package main is the entry point for the Athenaeum admin CLI.
// It talks to the database directly for operational tasks: seeding the
// catalog, registering patrons and inspecting copies.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/config"
	"github.com/athenaeum-io/athenaeum/internal/repository"
	"github.com/athenaeum-io/athenaeum/internal/repository/postgres"
	"github.com/athenaeum-io/athenaeum/internal/repository/sqlite"
	"github.com/athenaeum-io/athenaeum/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 && (len(args) < 1 || args[0] != "version" && args[0] != "help") {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "version" {
		fmt.Printf("Athenaeum Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	}
	if args[0] == "help" {
		printUsage()
		return
	}

	if err := runCommand(*configPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repos, closeDB, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	clock := repository.SystemClock{}
	catalog := service.NewCatalogService(repos, nil, clock, 0, logger)
	members := service.NewMemberService(repos.Users, logger)

	switch args[0] + " " + args[1] {
	case "user create":
		return userCreate(ctx, members, args[2:])
	case "user list":
		return userList(ctx, members)
	case "book add":
		return bookAdd(ctx, catalog, args[2:])
	case "book list":
		return bookList(ctx, catalog)
	case "copy add":
		return copyAdd(ctx, catalog, args[2:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s %s", args[0], args[1])
	}
}

func userCreate(ctx context.Context, members *service.MemberService, args []string) error {
	fs := flag.NewFlagSet("user create", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (optional)")
	_ = fs.Parse(args)

	out, err := members.RegisterUser(ctx, service.RegisterUserInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		return err
	}

	fmt.Printf("created user %s (%s)\n", out.User.ID, out.User.Email)
	return nil
}

func userList(ctx context.Context, members *service.MemberService) error {
	out, err := members.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range out.Users {
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Name, u.Email)
	}
	return nil
}

func bookAdd(ctx context.Context, catalog *service.CatalogService, args []string) error {
	fs := flag.NewFlagSet("book add", flag.ExitOnError)
	title := fs.String("title", "", "book title")
	author := fs.String("author", "", "book author")
	isbn := fs.String("isbn", "", "ISBN")
	year := fs.Int("year", 0, "publication year")
	_ = fs.Parse(args)

	out, err := catalog.AddBook(ctx, service.AddBookInput{
		Title:  *title,
		Author: *author,
		ISBN:   *isbn,
		Year:   *year,
	})
	if err != nil {
		return err
	}

	fmt.Printf("added book %s (%q by %s)\n", out.Book.ID, out.Book.Title, out.Book.Author)
	return nil
}

func bookList(ctx context.Context, catalog *service.CatalogService) error {
	out, err := catalog.ListBooks(ctx, service.ListBooksInput{})
	if err != nil {
		return err
	}

	for _, b := range out.Books {
		fmt.Printf("%s\t%q by %s (%d)\t%d available\n", b.ID, b.Title, b.Author, b.Year, b.AvailableCopies)
	}
	return nil
}

func copyAdd(ctx context.Context, catalog *service.CatalogService, args []string) error {
	fs := flag.NewFlagSet("copy add", flag.ExitOnError)
	bookID := fs.String("book", "", "book ID")
	userID := fs.String("user", "", "acting user ID")
	_ = fs.Parse(args)

	book, err := uuid.Parse(*bookID)
	if err != nil {
		return fmt.Errorf("invalid book ID: %w", err)
	}
	user, err := uuid.Parse(*userID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	out, err := catalog.AddCopy(ctx, service.AddCopyInput{BookID: book, ActingUserID: user})
	if err != nil {
		return err
	}

	fmt.Printf("registered copy %s of book %s\n", out.Copy.ID, book)
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		dbCfg := sqlite.DefaultConfig(cfg.Database.Path)
		dbCfg.JournalMode = cfg.Database.JournalMode
		dbCfg.BusyTimeout = cfg.Database.BusyTimeout
		dbCfg.SynchronousMode = cfg.Database.SynchronousMode

		db, err := sqlite.NewDB(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewRepositories(db), func() { _ = db.Close() }, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRepositories(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func printUsage() {
	fmt.Println(`Athenaeum Admin CLI

Usage:
  athenaeum-admin [-config path] <command> <subcommand> [flags]

Commands:
  user create   --name NAME --email EMAIL [--password PASS]
  user list
  book add      --title TITLE --author AUTHOR [--isbn ISBN] [--year YEAR]
  book list
  copy add      --book BOOK_ID --user USER_ID
  version       Print version information
  help          Show this help message

Examples:
  athenaeum-admin user create --name "Ada Lovelace" --email ada@example.com
  athenaeum-admin book add --title "SICP" --author Abelson --year 1985
  athenaeum-admin copy add --book <book-id> --user <user-id>`)
}
