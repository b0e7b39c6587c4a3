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

package godm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//Action tags a buffered command with the manager operation that produced it.
type Action string

const (
	ActionStore         Action = `PodManager:store`
	ActionDelete        Action = `PodManager:delete`
	ActionLoad          Action = `PodManager:load`
	ActionQuery         Action = `Query:getAll`
	ActionFind          Action = `Finder:find`
	ActionFindOne       Action = `Finder:findOne`
	ActionAny           Action = `Finder:any`
	ActionGetEdges      Action = `GraphManager:getEdges`
	ActionGetNeighbours Action = `GraphManager:getNeighbours`
)

//ExecutionMode tells a manager whether to run an operation now or buffer it.
type ExecutionMode int

const (
	Immediate ExecutionMode = iota
	Buffered
)

//replayer turns the raw result of one buffered command into what the
//operation would have returned had it executed immediately.
type replayer interface {
	replay(ctx context.Context, raw any) (any, error)
}

type replayFunc func(ctx context.Context, raw any) (any, error)

func (f replayFunc) replay(ctx context.Context, raw any) (any, error) {
	return f(ctx, raw)
}

var passthrough = replayFunc(func(_ context.Context, raw any) (any, error) {
	return raw, nil
})

//Command is one deferred operation inside the transaction body.
type Command struct {
	ID     string
	Script string
	Action Action
	Object *Pod
	Graph  bool
	Aux    map[string]any

	replay replayer
}

//TransactionManager buffers manager operations and runs them as one scripted transaction.
type TransactionManager struct {
	runner     ScriptedTransactionRunner
	graph      *Graph
	normalizer ErrorNormalizer
	logger     *zap.Logger
	factories  map[Action]func(*Command) replayer

	active   bool
	paused   bool
	reads    []string
	writes   []string
	order    []string
	commands map[string]*Command
	bindings map[string]string
}

func NewTransactionManager(runner ScriptedTransactionRunner, graph *Graph, normalizer ErrorNormalizer, logger *zap.Logger) *TransactionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tm := &TransactionManager{
		runner:     runner,
		graph:      graph,
		normalizer: normalizer,
		logger:     logger,
		factories:  map[Action]func(*Command) replayer{},
	}
	tm.registerAction(ActionQuery, func(*Command) replayer { return passthrough })
	tm.clear()
	return tm
}

func (tm *TransactionManager) registerAction(action Action, factory func(*Command) replayer) {
	tm.factories[action] = factory
}

func (tm *TransactionManager) clear() {
	tm.active = false
	tm.paused = true
	tm.reads = nil
	tm.writes = nil
	tm.order = nil
	tm.commands = map[string]*Command{}
	tm.bindings = map[string]string{}
}

//HasTransaction is true while a transaction is open and not paused.
func (tm *TransactionManager) HasTransaction() bool {
	return tm.active && !tm.paused
}

func (tm *TransactionManager) Mode() ExecutionMode {
	if tm.HasTransaction() {
		return Buffered
	}
	return Immediate
}

func (tm *TransactionManager) Begin() error {
	if tm.active {
		return errors.Wrap(ErrTransaction, "a transaction is already active")
	}
	tm.clear()
	tm.active = true
	tm.paused = false
	return nil
}

func (tm *TransactionManager) requireActive(op string) error {
	if !tm.active {
		return errors.Wrapf(ErrTransaction, "%s: no active transaction", op)
	}
	return nil
}

//AddCommand buffers a raw script fragment. action selects how its result is converted at commit.
func (tm *TransactionManager) AddCommand(script string, action Action, object *Pod, graph bool, aux map[string]any) (string, error) {
	cmd := &Command{Script: script, Action: action, Object: object, Graph: graph, Aux: aux}
	if factory, ok := tm.factories[action]; ok {
		cmd.replay = factory(cmd)
	}
	return tm.add(cmd)
}

func (tm *TransactionManager) add(cmd *Command) (string, error) {
	if err := tm.requireActive("add command"); err != nil {
		return "", err
	}
	cmd.ID = tm.newCommandID()
	tm.commands[cmd.ID] = cmd
	tm.order = append(tm.order, cmd.ID)
	bufferedCommands.WithLabelValues(string(cmd.Action)).Inc()
	tm.logger.Debug("buffered command", zap.String("id", cmd.ID), zap.String("action", string(cmd.Action)))
	return cmd.ID, nil
}

func (tm *TransactionManager) newCommandID() string {
	for {
		id := "c" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		if _, exists := tm.commands[id]; !exists {
			return id
		}
	}
}

//RegisterResult names the result of the most recently added command.
func (tm *TransactionManager) RegisterResult(name string) error {
	if err := tm.requireActive("register result"); err != nil {
		return err
	}
	if len(tm.order) == 0 {
		return errors.Wrapf(ErrTransaction, "register result %q: no command to bind", name)
	}
	tm.bindings[tm.order[len(tm.order)-1]] = name
	return nil
}

func (tm *TransactionManager) AddReadCollection(collection string) error {
	if err := tm.requireActive("add read collection"); err != nil {
		return err
	}
	tm.reads = appendUnique(tm.reads, collection)
	return nil
}

func (tm *TransactionManager) AddWriteCollection(collection string) error {
	if err := tm.requireActive("add write collection"); err != nil {
		return err
	}
	tm.writes = appendUnique(tm.writes, collection)
	return nil
}

func (tm *TransactionManager) ReadCollections() []string  { return append([]string(nil), tm.reads...) }
func (tm *TransactionManager) WriteCollections() []string { return append([]string(nil), tm.writes...) }

//Commands returns the buffered commands in execution order.
func (tm *TransactionManager) Commands() []*Command {
	commands := make([]*Command, 0, len(tm.order))
	for _, id := range tm.order {
		commands = append(commands, tm.commands[id])
	}
	return commands
}

func (tm *TransactionManager) Pause() error {
	if err := tm.requireActive("pause"); err != nil {
		return err
	}
	if tm.paused {
		return errors.Wrap(ErrTransaction, "transaction is already paused")
	}
	tm.paused = true
	return nil
}

func (tm *TransactionManager) Resume() error {
	if err := tm.requireActive("resume"); err != nil {
		return err
	}
	if !tm.paused {
		return errors.Wrap(ErrTransaction, "transaction is not paused")
	}
	tm.paused = false
	return nil
}

func (tm *TransactionManager) Cancel() error {
	if err := tm.requireActive("cancel"); err != nil {
		return err
	}
	tm.logger.Debug("transaction cancelled", zap.Int("commands", len(tm.order)))
	tm.clear()
	return nil
}

//SearchCommandsByActionAndObject finds the latest command with the given action on object.
//position counts from the start of the buffer.
func (tm *TransactionManager) SearchCommandsByActionAndObject(action Action, object *Pod) (id string, position int, found bool) {
	for i := len(tm.order) - 1; i >= 0; i-- {
		cmd := tm.commands[tm.order[i]]
		if cmd.Action == action && cmd.Object == object {
			return cmd.ID, i, true
		}
	}
	return "", 0, false
}

func (tm *TransactionManager) script() string {
	var b strings.Builder
	b.WriteString("function () {\n")
	b.WriteString("  var db = require(\"@arangodb\").db;\n")
	for _, id := range tm.order {
		if tm.commands[id].Graph && tm.graph != nil {
			fmt.Fprintf(&b, "  var graph = require(\"@arangodb/general-graph\")._graph(%s);\n", jsString(tm.graph.Name))
			break
		}
	}
	b.WriteString("  var result = {};\n")
	for _, id := range tm.order {
		fmt.Fprintf(&b, "  result[%s] = %s;\n", jsString(id), tm.commands[id].Script)
	}
	b.WriteString("  return result;\n}")
	return b.String()
}

//Commit runs every buffered command in one scripted transaction and returns the
//converted results keyed by their registered names. The manager is cleared before results
//are converted, so lifecycle hooks fired by the conversion run outside the transaction.
func (tm *TransactionManager) Commit(ctx context.Context) (map[string]any, error) {
	if err := tm.requireActive("commit"); err != nil {
		return nil, err
	}
	if len(tm.order) == 0 {
		return nil, errors.Wrap(ErrTransaction, "commit: no commands buffered")
	}
	order, commands, bindings := tm.order, tm.commands, tm.bindings
	script, reads, writes := tm.script(), tm.ReadCollections(), tm.WriteCollections()
	tm.clear()

	start := time.Now()
	raw, err := tm.runner.Run(ctx, script, reads, writes, nil)
	if err != nil {
		observeCommit("error", start)
		tm.logger.Warn("transaction failed", zap.Int("commands", len(order)), zap.Error(err))
		return nil, normalize(tm.normalizer, ErrTransaction, err)
	}
	results, err := asResultMap(raw)
	if err != nil {
		observeCommit("error", start)
		return nil, err
	}

	resolved := make(map[string]any, len(bindings))
	for _, id := range order {
		cmd := commands[id]
		if cmd.replay == nil {
			observeCommit("error", start)
			return nil, errors.Wrapf(ErrTransaction, "command %s: %v %q", id, ErrUnknownAction, cmd.Action)
		}
		value, err := cmd.replay.replay(ctx, results[id])
		if err != nil {
			observeCommit("error", start)
			return nil, errors.Wrapf(ErrTransaction, "command %s (%s): %v", id, cmd.Action, err)
		}
		if name, ok := bindings[id]; ok {
			resolved[name] = value
		}
	}
	observeCommit("ok", start)
	tm.logger.Debug("transaction committed", zap.Int("commands", len(order)), zap.Duration("took", time.Since(start)))
	return resolved, nil
}

//ExecuteTransaction runs an arbitrary transaction body outside the command buffer.
func (tm *TransactionManager) ExecuteTransaction(ctx context.Context, action string, readCollections, writeCollections []string, params map[string]any) (any, error) {
	result, err := tm.runner.Run(ctx, action, readCollections, writeCollections, params)
	if err != nil {
		return nil, normalize(tm.normalizer, ErrTransaction, err)
	}
	return result, nil
}

func asResultMap(raw any) (map[string]any, error) {
	switch r := raw.(type) {
	case map[string]any:
		return r, nil
	case nil:
		return map[string]any{}, nil
	case json.RawMessage:
		results := map[string]any{}
		if err := json.Unmarshal(r, &results); err != nil {
			return nil, errors.Wrap(ErrTransaction, err.Error())
		}
		return results, nil
	}
	return nil, errors.Wrapf(ErrTransaction, "unexpected transaction result %T", raw)
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
