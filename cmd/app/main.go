package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqliteadapter "github.com/atvirokodosprendimai/testforge/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/testforge/internal/adapters/genai"
	httpadapter "github.com/atvirokodosprendimai/testforge/internal/adapters/http"
	"github.com/atvirokodosprendimai/testforge/internal/adapters/rpcjson"
	"github.com/atvirokodosprendimai/testforge/internal/adapters/runner"
	"github.com/atvirokodosprendimai/testforge/internal/application"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "testforge",
		Usage: "Test case authoring server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			migrateLegacyCommand(),
			authCommand(),
			testcasesCommand(),
			autotestCommand(),
			analyticsCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

type serverOptions struct {
	addr      string
	rpcSocket string
	dbPath    string
	jwtSecret string
	geminiKey string
	mock      bool
	useRunner bool
	runnerBin string
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP and JSON-RPC servers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address", Sources: cli.EnvVars("TESTFORGE_ADDR")},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/testforge.sock", Usage: "JSON-RPC unix socket path", Sources: cli.EnvVars("TESTFORGE_RPC_SOCKET")},
			&cli.StringFlag{Name: "db-path", Value: "testforge.db", Usage: "SQLite database path", Sources: cli.EnvVars("TESTFORGE_DB_PATH")},
			&cli.StringFlag{Name: "jwt-secret", Usage: "HMAC secret for auth tokens", Sources: cli.EnvVars("TESTFORGE_JWT_SECRET")},
			&cli.StringFlag{Name: "gemini-api-key", Usage: "Gemini API key, empty disables AI generation", Sources: cli.EnvVars("GEMINI_API_KEY")},
			&cli.BoolFlag{Name: "mock", Usage: "always use fallback test generation", Sources: cli.EnvVars("TESTFORGE_MOCK")},
			&cli.BoolFlag{Name: "use-runner", Usage: "execute tests through the external runner binary", Sources: cli.EnvVars("TESTFORGE_USE_RUNNER")},
			&cli.StringFlag{Name: "runner-bin", Value: "testforge-runner", Usage: "external runner binary", Sources: cli.EnvVars("TESTFORGE_RUNNER_BIN")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, serverOptions{
				addr:      c.String("addr"),
				rpcSocket: c.String("rpc-socket"),
				dbPath:    c.String("db-path"),
				jwtSecret: c.String("jwt-secret"),
				geminiKey: c.String("gemini-api-key"),
				mock:      c.Bool("mock"),
				useRunner: c.Bool("use-runner"),
				runnerBin: c.String("runner-bin"),
			})
		},
	}
}

func runServer(ctx context.Context, opts serverOptions) error {
	tokens, err := application.NewTokenIssuer(opts.jwtSecret)
	if err != nil {
		return err
	}

	db, err := sqliteadapter.Open(opts.dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewRepository(db)
	generator := genai.NewGenerator(genai.NewGeminiClient(opts.geminiKey), opts.mock)
	var specRunner application.SpecRunner
	if opts.useRunner {
		specRunner = runner.New(opts.runnerBin)
	}
	service := application.NewService(repo, tokens, generator, specRunner)

	router := httpadapter.NewRouter(service)
	srv := &http.Server{Addr: opts.addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcjson.Start(opts.rpcSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	log.Printf("json-rpc listening on unix://%s", opts.rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateLegacyCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate-legacy",
		Usage: "Copy flat-schema test cases into the normalized tables",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-path", Value: "testforge.db", Usage: "SQLite database path", Sources: cli.EnvVars("TESTFORGE_DB_PATH")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := sqliteadapter.Open(c.String("db-path"))
			if err != nil {
				return err
			}
			if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
				return err
			}
			copied, err := sqliteadapter.NewRepository(db).CopyLegacyForward(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("copied %d legacy test cases\n", copied)
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register a new account and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "full-name"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					token, err := doRegister(ctx, cfg, c.String("username"), c.String("email"), c.String("password"), c.String("full-name"))
					if err != nil {
						return err
					}
					cfg.Token = token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("registered %s\n", c.String("email"))
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/testforge.sock"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					token, err := doLogin(ctx, cfg, c.String("email"), c.String("password"))
					if err != nil {
						return err
					}
					cfg.Token = token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", c.String("email"))
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doWhoAmI(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{
						{"id", uintToString(out.ID)},
						{"username", out.Username},
						{"email", out.Email},
					})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					_ = doLogout(ctx, cfg)
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func testcasesCommand() *cli.Command {
	return &cli.Command{
		Name:  "testcases",
		Usage: "Test case commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List test cases",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doTestCasesList(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTestCases(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a test case",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "module", Value: "General"},
					&cli.StringFlag{Name: "type", Value: "manual"},
					&cli.StringFlag{Name: "priority", Value: "Medium"},
					&cli.StringFlag{Name: "tags", Usage: "comma separated tags"},
					&cli.StringFlag{Name: "steps", Usage: "action|expected;action|expected"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doTestCaseCreate(ctx, cfg, c.String("name"), c.String("module"), c.String("type"), c.String("priority"), c.String("tags"), c.String("steps"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTestCaseDetail(out)
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show one test case",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doTestCaseGet(ctx, cfg, uint(c.Uint("id")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTestCaseDetail(out)
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Update test case fields, omitted flags are left untouched",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "module"},
					&cli.StringFlag{Name: "type"},
					&cli.StringFlag{Name: "priority"},
					&cli.StringFlag{Name: "tags", Usage: "comma separated tags"},
					&cli.StringFlag{Name: "steps", Usage: "action|expected;... replaces all steps"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					fields := map[string]any{}
					for _, name := range []string{"name", "module", "type", "priority", "tags"} {
						if c.IsSet(name) {
							fields[name] = c.String(name)
						}
					}
					if c.IsSet("steps") {
						fields["steps"] = stepPayloads(c.String("steps"))
					}
					out, err := doTestCaseUpdate(ctx, cfg, uint(c.Uint("id")), fields)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTestCaseDetail(out)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a test case",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doTestCaseDelete(ctx, cfg, uint(c.Uint("id"))); err != nil {
						return err
					}
					fmt.Printf("deleted test case %d\n", c.Uint("id"))
					return nil
				},
			},
		},
	}
}

func autotestCommand() *cli.Command {
	htmlFlags := []cli.Flag{
		&cli.StringFlag{Name: "html-file", Usage: "path to an HTML file"},
		&cli.StringFlag{Name: "url", Usage: "page URL, used when no HTML file is given"},
	}
	return &cli.Command{
		Name:  "autotest",
		Usage: "HTML analysis, test generation and execution",
		Commands: []*cli.Command{
			{
				Name:  "analyze",
				Usage: "Extract page structure facts",
				Flags: append(htmlFlags, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					html, err := readHTMLFlag(c)
					if err != nil {
						return err
					}
					facts, summary, err := doAnalyze(ctx, cfg, html, c.String("url"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(facts)
					}
					fmt.Println(summary)
					return nil
				},
			},
			{
				Name:  "generate",
				Usage: "Generate test candidates for a page",
				Flags: append(htmlFlags, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					html, err := readHTMLFlag(c)
					if err != nil {
						return err
					}
					out, err := doGenerate(ctx, cfg, html, c.String("url"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printGeneratedTests(out)
					return nil
				},
			},
			{
				Name:  "run",
				Usage: "Generate tests for a page and execute them",
				Flags: append(htmlFlags,
					&cli.StringFlag{Name: "file-name", Usage: "name to record for the run"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					html, err := readHTMLFlag(c)
					if err != nil {
						return err
					}
					tests, err := doGenerate(ctx, cfg, html, c.String("url"))
					if err != nil {
						return err
					}
					out, err := doRunTests(ctx, cfg, tests, html, c.String("file-name"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRunSummary(out)
					return nil
				},
			},
			{
				Name:  "history",
				Usage: "Show recent test runs",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doRunHistory(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRuns(out)
					return nil
				},
			},
		},
	}
}

func analyticsCommand() *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "Test case analytics",
		Commands: []*cli.Command{
			{
				Name:  "summary",
				Usage: "Show aggregate test case metrics",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doAnalyticsSummary(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAnalyticsSummary(out)
					return nil
				},
			},
			{
				Name:  "export",
				Usage: "Export test cases as CSV",
				Flags: []cli.Flag{&cli.StringFlag{Name: "out", Usage: "write to a file instead of stdout"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					data, err := doAnalyticsExport(ctx, cfg)
					if err != nil {
						return err
					}
					if path := c.String("out"); path != "" {
						return os.WriteFile(path, data, 0o644)
					}
					_, err = os.Stdout.Write(data)
					return err
				},
			},
		},
	}
}

func readHTMLFlag(c *cli.Command) (string, error) {
	path := c.String("html-file")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
