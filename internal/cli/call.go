package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lunadb/internal/config"
	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/kv"
	"github.com/roach88/lunadb/internal/server"
	"github.com/roach88/lunadb/internal/service"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Params    string
	Token     string
	Category  string
	Database  string
	Backend   string
	Namespace string
	Config    string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <method|luna-uri>",
		Short: "Run one call against a store",
		Long: `Run one call directly against a storage backend and print the response.

The target is a method name or a luna:// address. --db selects a SQLite
database file unless --backend names another backend.

Exit codes:
  0 - The call returned returnValue true
  1 - The call failed
  2 - Command error (bad flags, storage unavailable)

Examples:
  lunadb call putKind --db ./lunadb.db --token app.A.1 \
    --params '{"id":"com.example.notes","owner":"app.A"}'
  lunadb call luna://com.webos.service.db/find --db ./lunadb.db --token app.A.1 \
    --params '{"query":{"from":"com.example.notes"}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "{}", "call parameters as a JSON object")
	cmd.Flags().StringVar(&opts.Token, "token", "", "caller token")
	cmd.Flags().StringVar(&opts.Category, "category", "", "method category")
	cmd.Flags().StringVar(&opts.Database, "db", "", "storage location (SQLite file by default)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "storage backend (memory|leveldb|sqlite|redis)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "storage namespace")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML configuration")

	return cmd
}

// callConfig resolves the storage configuration of a call from the
// configuration file, the environment and the command flags.
func callConfig(opts *CallOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Storage.DSN = opts.Database
		if opts.Backend == "" {
			cfg.Storage.Backend = kv.BackendSQLite
		}
	}
	if opts.Backend != "" {
		cfg.Storage.Backend = opts.Backend
	}
	if opts.Namespace != "" {
		cfg.Storage.Namespace = opts.Namespace
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// callTarget splits the call target into category and method.
func callTarget(target, category string) (string, string, error) {
	if !strings.Contains(target, "://") {
		return category, target, nil
	}
	t, err := server.SplitURI(target)
	if err != nil {
		return "", "", err
	}
	if t.Service != server.DefaultServiceName {
		return "", "", fmt.Errorf("service does not exist: %s", t.Service)
	}
	return t.Category, t.Method, nil
}

func runCall(opts *CallOptions, target string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	category, method, err := callTarget(target, opts.Category)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid call target", err)
	}
	cfg, err := callConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid storage configuration", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.Log.SlogLevel())
	svc, closeStorage, err := openService(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer closeStorage()

	resp := svc.Call(ctx, &service.Request{
		Category: category,
		Method:   method,
		Params:   []byte(opts.Params),
		Token:    opts.Token,
	})
	data, err := doc.Marshal(resp)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode response", err)
	}

	if service.ReturnValue(resp) {
		if opts.Format == "json" {
			return formatter.Success(json.RawMessage(data))
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if opts.Format == "json" {
		text, _ := resp.Str("errorText")
		if err := formatter.Error(ErrCodeCallFailed, text, json.RawMessage(data)); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return NewExitError(ExitFailure, "call failed")
}
