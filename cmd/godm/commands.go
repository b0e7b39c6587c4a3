// MIT License
//
// Copyright (c) 2020 codingfinest
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	godm "github.com/disneystreaming/arango-go-odm"
	"github.com/disneystreaming/arango-go-odm/arango"
	"github.com/disneystreaming/arango-go-odm/neo4jgraph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalOptions struct {
	configPath string
	verbose    bool
	useNeo4j   bool
}

//env is an open session plus whatever must be closed once the command is done.
type env struct {
	session *godm.SessionImpl
	logger  *zap.Logger
	closers []func() error
}

func (e *env) close() {
	for _, closer := range e.closers {
		if err := closer(); err != nil {
			e.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func (o *globalOptions) config() (*godm.Config, error) {
	if o.configPath == "" {
		cfg := godm.NewConfig()
		cfg.Adjust()
		return cfg, nil
	}
	return godm.LoadConfig(o.configPath)
}

func (o *globalOptions) open(ctx context.Context) (*env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if o.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	e := &env{logger: logger}

	client, err := arango.Open(ctx, cfg, logger.Named("arango"))
	if err != nil {
		return nil, err
	}
	backend := client.Backend()
	if o.useNeo4j {
		if cfg.Neo4j.URI == "" {
			return nil, errors.New("--neo4j needs a [neo4j] uri in the config")
		}
		store, err := neo4jgraph.Open(cfg.Neo4j, logger.Named("neo4j"))
		if err != nil {
			return nil, err
		}
		backend.Graphs = store
		e.closers = append(e.closers, store.Close)
	}
	if e.session, err = godm.NewSession(cfg, backend, godm.WithLogger(logger)); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

//withSession opens a session for the duration of run.
func withSession(opts *globalOptions, run func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := opts.open(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return run(ctx, e.session, cmd.OutOrStdout(), args)
	}
}

//parseParams reads `name=value` pairs. Values are json when they parse as json, strings otherwise.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.Errorf("bad param %q, expected name=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[name] = value
	}
	return params, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printModel(out io.Writer, m godm.Model) error {
	if m == nil {
		return printJSON(out, nil)
	}
	return printJSON(out, m.Pod().ToTransport())
}

func newQueryCommand(opts *globalOptions) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "query <aql>",
		Short: "Run an AQL query and print every row",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error {
			bindParams, err := parseParams(params)
			if err != nil {
				return err
			}
			rows, err := s.Finder().Query(ctx, args[0], bindParams)
			if err != nil {
				return err
			}
			return printJSON(out, rows)
		}),
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "bind parameter as name=value")
	return cmd
}

func newExplainCommand(opts *globalOptions) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "explain <aql>",
		Short: "Print the execution plan of an AQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindParams, err := parseParams(params)
			if err != nil {
				return err
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			client, err := arango.Open(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			plan, err := client.Explain(cmd.Context(), args[0], bindParams)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), plan)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "bind parameter as name=value")
	return cmd
}

func newExecCommand(opts *globalOptions) *cobra.Command {
	var (
		params []string
		reads  []string
		writes []string
	)
	cmd := &cobra.Command{
		Use:   "exec <script-file>",
		Short: "Run a javascript transaction body read from a file, - for stdin",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error {
			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			scriptParams, err := parseParams(params)
			if err != nil {
				return err
			}
			result, err := s.Transaction().ExecuteTransaction(ctx, script, reads, writes, scriptParams)
			if err != nil {
				return err
			}
			return printJSON(out, result)
		}),
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&params, "param", "p", nil, "transaction parameter as name=value")
	flags.StringSliceVarP(&reads, "read", "r", nil, "collections read by the transaction")
	flags.StringSliceVarP(&writes, "write", "w", nil, "collections written by the transaction")
	return cmd
}

func readScript(path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read script %s", path)
	}
	return string(b), nil
}

func newLoadCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <type> <id>",
		Short: "Load one document by key or id",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(opts, func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error {
			m, err := s.Load(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printModel(out, m)
		}),
	}
}

func newAnyCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "any <type>",
		Short: "Print a random document of a type",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error {
			m, err := s.Finder().Any(ctx, args[0])
			if err != nil {
				return err
			}
			return printModel(out, m)
		}),
	}
}

func newNeighboursCommand(opts *globalOptions) *cobra.Command {
	var (
		direction string
		labels    []string
	)
	cmd := &cobra.Command{
		Use:   "neighbours <vertex-id>",
		Short: "Print the vertices adjacent to a vertex of the configured graph",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, func(ctx context.Context, s *godm.SessionImpl, out io.Writer, args []string) error {
			if s.Graph() == nil {
				return errors.New("no graph configured")
			}
			var label any
			if len(labels) > 0 {
				label = labels
			}
			filter, err := godm.NewEdgeFilter(godm.Direction(direction), label)
			if err != nil {
				return err
			}
			models, err := s.Graph().GetNeighbours(ctx, args[0], filter)
			if err != nil {
				return err
			}
			rows := make([]godm.Row, 0, len(models))
			for _, m := range models {
				rows = append(rows, m.Pod().ToTransport())
			}
			return printJSON(out, rows)
		}),
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "", "in, out or empty for both")
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "edge labels to follow")
	return cmd
}
