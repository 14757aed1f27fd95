package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soffa-projects/tenantdb-go/app"
	"github.com/soffa-projects/tenantdb-go/config"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/soffa-projects/tenantdb-go/preview"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func main() {
	sourceFlag := &cli.StringFlag{
		Name:     "source",
		Aliases:  []string{"s"},
		Usage:    "Data source id or name",
		EnvVars:  []string{"TENANTDB_SOURCE"},
		Required: true,
	}
	dryRunFlag := &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Print the DDL without applying it",
	}

	cliApp := &cli.App{
		Name:    "tenantdb",
		Usage:   "Inspect and edit multi-tenant collections",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "json",
				Usage:   "Output format: json or yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sources",
				Usage:  "List the known data sources",
				Action: withApp(listSources),
			},
			{
				Name:   "health",
				Usage:  "Ping the admin database and the given sources",
				Action: withApp(health),
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "source", Aliases: []string{"s"}, Usage: "Sources to connect first"},
				},
			},
			{
				Name:      "ensure",
				Usage:     "Declare a collection and add fields",
				ArgsUsage: "<collection>",
				Action:    withApp(ensure),
				Flags: []cli.Flag{
					sourceFlag,
					dryRunFlag,
					&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "Field as name:type, repeatable"},
					&cli.BoolFlag{Name: "auth", Usage: "Declare an auth collection"},
					&cli.StringFlag{Name: "id-type", Usage: "serial, uuid, text or typeid"},
				},
			},
			{
				Name:      "describe",
				Usage:     "Show the fields and indexes of a collection",
				ArgsUsage: "<collection>",
				Action:    withApp(describe),
				Flags:     []cli.Flag{sourceFlag},
			},
			{
				Name:      "drop",
				Usage:     "Drop a collection and its table",
				ArgsUsage: "<collection>",
				Action:    withApp(drop),
				Flags:     []cli.Flag{sourceFlag, dryRunFlag},
			},
			{
				Name:      "insert",
				Usage:     "Insert a JSON record",
				ArgsUsage: "<collection> <json>",
				Action:    withApp(execute(f.OpCreate)),
				Flags:     []cli.Flag{sourceFlag},
			},
			{
				Name:      "list",
				Usage:     "List records",
				ArgsUsage: "<collection>",
				Action:    withApp(execute(f.OpFindAll)),
				Flags: []cli.Flag{
					sourceFlag,
					&cli.StringFlag{Name: "where", Usage: "Trusted SQL predicate"},
					&cli.StringFlag{Name: "order", Usage: "Field to order by, prefix with - for descending"},
					&cli.IntFlag{Name: "limit"},
					&cli.IntFlag{Name: "offset"},
				},
			},
			{
				Name:      "get",
				Usage:     "Get a record by id",
				ArgsUsage: "<collection> <id>",
				Action:    withApp(execute(f.OpGet)),
				Flags:     []cli.Flag{sourceFlag},
			},
			{
				Name:      "update",
				Usage:     "Update a record with a JSON patch",
				ArgsUsage: "<collection> <id> <json>",
				Action:    withApp(execute(f.OpUpdate)),
				Flags:     []cli.Flag{sourceFlag},
			},
			{
				Name:      "delete",
				Usage:     "Delete a record by id",
				ArgsUsage: "<collection> <id>",
				Action:    withApp(execute(f.OpDelete)),
				Flags:     []cli.Flag{sourceFlag},
			},
			{
				Name:      "preview",
				Usage:     "Render a statement with its arguments inlined",
				ArgsUsage: "<sql> [args...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("sql is required", 1)
					}
					args := make([]any, 0, c.NArg()-1)
					for _, arg := range c.Args().Slice()[1:] {
						args = append(args, arg)
					}
					fmt.Println(preview.PreviewQuery(c.Args().First(), args...))
					return nil
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type action func(ctx context.Context, c *cli.Context, a *app.App) error

// withApp builds the app from the environment and shuts it down after the command.
func withApp(run action) cli.ActionFunc {
	return func(c *cli.Context) error {
		settings := config.Defaults()
		if err := config.LoadE(&settings); err != nil {
			return err
		}
		if level := c.String("log-level"); level != "" {
			settings.LogLevel = level
		}
		a, err := app.New(settings)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		defer a.Shutdown(context.Background())
		return run(ctx, c, a)
	}
}

func listSources(ctx context.Context, c *cli.Context, a *app.App) error {
	list, err := a.Provider.List(ctx)
	if err != nil {
		return err
	}
	type row struct {
		ID     string `json:"id" yaml:"id"`
		Name   string `json:"name" yaml:"name"`
		Prefix string `json:"prefix" yaml:"prefix"`
	}
	out := make([]row, 0, len(list))
	for _, ds := range list {
		out = append(out, row{ID: ds.ID, Name: ds.Name, Prefix: ds.Prefix()})
	}
	return render(c, out)
}

func health(ctx context.Context, c *cli.Context, a *app.App) error {
	for _, source := range c.StringSlice("source") {
		if _, err := a.Manager.Resolve(ctx, source); err != nil {
			log.Warn("source %s: %v", source, err)
		}
	}
	return render(c, a.Health(ctx))
}

func ensure(ctx context.Context, c *cli.Context, a *app.App) error {
	collection, err := arg(c, 0, "collection")
	if err != nil {
		return err
	}
	source := c.String("source")
	opts := f.SchemaOpts{DryRun: c.Bool("dry-run")}
	kind := f.CollectionBase
	if c.Bool("auth") {
		kind = f.CollectionAuth
	}
	var idType f.IdType
	if raw := c.String("id-type"); raw != "" {
		parsed, ok := f.ParseIdType(raw)
		if !ok {
			return errors.BadRequest("invalid id type %q", raw)
		}
		idType = parsed
	}

	changes := []*f.SchemaChange{}
	declared := true
	if _, err := a.Registry.Describe(ctx, source, collection); errors.Is(err, errors.ErrNotFound) {
		change, err := a.Registry.Declare(ctx, source, collection, kind, idType, opts)
		if err != nil {
			return err
		}
		changes = append(changes, change)
		declared = !opts.DryRun
	} else if err != nil {
		return err
	}

	for _, def := range c.StringSlice("field") {
		field, err := parseField(def)
		if err != nil {
			return err
		}
		if !declared {
			log.Info("field %s is added once %s exists", field.Name, collection)
			continue
		}
		change, err := a.Registry.AddField(ctx, source, collection, field, opts)
		if errors.Is(err, errors.ErrConflict) {
			log.Info("field %s already exists", field.Name)
			continue
		}
		if err != nil {
			return err
		}
		changes = append(changes, change)
	}
	for _, change := range changes {
		if change.Preview != "" {
			fmt.Println(change.Preview)
		}
	}
	return nil
}

// parseField reads name:type[:required].
func parseField(def string) (f.FieldDef, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return f.FieldDef{}, errors.BadRequest("invalid field %q, expected name:type", def)
	}
	return f.FieldDef{
		Name:     parts[0],
		Type:     parts[1],
		Nullable: len(parts) < 3 || parts[2] != "required",
	}, nil
}

func describe(ctx context.Context, c *cli.Context, a *app.App) error {
	collection, err := arg(c, 0, "collection")
	if err != nil {
		return err
	}
	schema, err := a.Registry.Describe(ctx, c.String("source"), collection)
	if err != nil {
		return err
	}
	return render(c, schema)
}

func drop(ctx context.Context, c *cli.Context, a *app.App) error {
	collection, err := arg(c, 0, "collection")
	if err != nil {
		return err
	}
	change, err := a.Registry.Drop(ctx, c.String("source"), collection, f.SchemaOpts{DryRun: c.Bool("dry-run")})
	if err != nil {
		return err
	}
	fmt.Println(change.Preview)
	return nil
}

func execute(op f.Operation) action {
	return func(ctx context.Context, c *cli.Context, a *app.App) error {
		collection, err := arg(c, 0, "collection")
		if err != nil {
			return err
		}
		req := f.Request{
			DatabaseID: c.String("source"),
			Collection: collection,
			Operation:  op,
		}
		payloadAt := 1
		if op == f.OpGet || op == f.OpUpdate || op == f.OpDelete {
			if req.ID, err = arg(c, 1, "id"); err != nil {
				return err
			}
			payloadAt = 2
		}
		if op == f.OpCreate || op == f.OpUpdate {
			raw, err := arg(c, payloadAt, "json")
			if err != nil {
				return err
			}
			if req.Payload, err = decodeRecord(raw); err != nil {
				return err
			}
		}
		if op == f.OpFindAll {
			req.Predicate = f.TrustedPredicate(c.String("where"))
			req.Opts = f.QueryOpts{
				OrderBy: c.String("order"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			}
		}

		res, err := a.Engine.Execute(ctx, req)
		if err != nil {
			return err
		}
		switch op {
		case f.OpFindAll:
			return render(c, res.Records)
		case f.OpDelete:
			fmt.Printf("deleted %v\n", req.ID)
			return nil
		}
		return render(c, res.Record)
	}
}

func decodeRecord(raw string) (f.Record, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var record f.Record
	if err := decoder.Decode(&record); err != nil {
		return nil, errors.BadRequest("invalid json record: %v", err)
	}
	return record, nil
}

func arg(c *cli.Context, index int, name string) (string, error) {
	value := c.Args().Get(index)
	if value == "" {
		return "", cli.Exit(name+" is required", 1)
	}
	return value, nil
}

func render(c *cli.Context, value any) error {
	if c.String("output") == "yaml" {
		out, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
