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

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type sessionOptions struct {
	logger    *zap.Logger
	formatter ModelFormatter
}

type Option func(*sessionOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

//WithModelFormatter replaces the strategy that maps pod types to registered model names.
func WithModelFormatter(formatter ModelFormatter) Option {
	return func(o *sessionOptions) { o.formatter = formatter }
}

//SessionImpl wires the managers sharing one event bus and one transaction manager.
type SessionImpl struct {
	config        *Config
	eventer       *EventBus
	registry      *ModelRegistry
	transactioner *TransactionManager
	podManager    *PodManager
	finder        *Finder
	graphManager  *GraphManager
	logger        *zap.Logger
}

func NewSession(cfg *Config, backend Backend, opts ...Option) (*SessionImpl, error) {
	o := &sessionOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.Adjust()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend.Documents == nil || backend.Queries == nil || backend.Transactions == nil || backend.Indexes == nil {
		return nil, errors.New("backend needs documents, queries, transactions and indexes")
	}
	var graph *Graph
	if cfg.GraphMode() {
		if backend.Graphs == nil {
			return nil, errors.Errorf("graph %q configured without a graph store", cfg.Graph.Name)
		}
		g := cfg.Graph
		graph = &g
	}

	s := &SessionImpl{
		config:   cfg,
		eventer:  NewEventBus(),
		registry: NewModelRegistry(o.formatter),
		logger:   o.logger,
	}
	s.transactioner = NewTransactionManager(backend.Transactions, graph, backend.Normalizer, o.logger.Named("transaction"))
	s.podManager = NewPodManager(backend.Documents, backend.Graphs, graph, s.transactioner, s.eventer, s.registry, backend.Normalizer, o.logger.Named("pods"))
	finder, err := NewFinder(s.podManager, backend.Documents, backend.Queries, backend.Indexes, s.transactioner, graph, backend.Normalizer, o.logger.Named("finder"), cfg.IndexCacheSize)
	if err != nil {
		return nil, err
	}
	s.finder = finder
	if graph != nil {
		s.graphManager = NewGraphManager(s.podManager, backend.Graphs, s.transactioner, *graph, backend.Normalizer, o.logger.Named("graph"))
	}
	return s, nil
}

func (s *SessionImpl) Config() *Config                  { return s.config }
func (s *SessionImpl) Events() *EventBus                { return s.eventer }
func (s *SessionImpl) Models() *ModelRegistry           { return s.registry }
func (s *SessionImpl) Transaction() *TransactionManager { return s.transactioner }
func (s *SessionImpl) Pods() *PodManager                { return s.podManager }
func (s *SessionImpl) Finder() *Finder                  { return s.finder }

//Graph is nil unless the session runs in graph mode.
func (s *SessionImpl) Graph() *GraphManager {
	return s.graphManager
}

func (s *SessionImpl) RegisterModel(name string, constructor func() any) {
	s.registry.Register(name, constructor)
}

func (s *SessionImpl) Dispense(typ string, label ...string) (Model, error) {
	return s.podManager.Dispense(typ, label...)
}

func (s *SessionImpl) Store(ctx context.Context, model Model) (string, error) {
	return s.podManager.Store(ctx, model)
}

func (s *SessionImpl) Delete(ctx context.Context, model Model) (bool, error) {
	return s.podManager.Delete(ctx, model)
}

func (s *SessionImpl) Load(ctx context.Context, typ, id string) (Model, error) {
	return s.podManager.Load(ctx, typ, id)
}

func (s *SessionImpl) BeginTransaction() error {
	return s.transactioner.Begin()
}

//RegisterResult names the result of the operation issued last.
func (s *SessionImpl) RegisterResult(name string) error {
	return s.transactioner.RegisterResult(name)
}

func (s *SessionImpl) Commit(ctx context.Context) (map[string]any, error) {
	return s.transactioner.Commit(ctx)
}

func (s *SessionImpl) Cancel() error {
	return s.transactioner.Cancel()
}

func (s *SessionImpl) RegisterEventListener(events any, listener EventListener) error {
	return s.eventer.Attach(events, listener)
}

func (s *SessionImpl) DisposeEventListener(listener EventListener) {
	s.eventer.DetachAllForListener(listener)
}
