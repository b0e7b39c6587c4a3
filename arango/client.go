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

//Package arango backs a godm session with an ArangoDB server reached over HTTP.
package arango

import (
	"context"

	driver "github.com/arangodb/go-driver"
	"github.com/arangodb/go-driver/http"
	godm "github.com/disneystreaming/arango-go-odm"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const handleCacheSize = 64

//Client implements every collaborator of a godm.Backend on one database.
type Client struct {
	db          driver.Database
	logger      *zap.Logger
	collections *lru.Cache[string, driver.Collection]
	graphs      *lru.Cache[string, driver.Graph]
}

var (
	_ godm.DocumentStore             = (*Client)(nil)
	_ godm.GraphStore                = (*Client)(nil)
	_ godm.QueryExecutor             = (*Client)(nil)
	_ godm.ScriptedTransactionRunner = (*Client)(nil)
	_ godm.IndexInspector            = (*Client)(nil)
)

//Open connects to the endpoints of cfg and selects its database.
func Open(ctx context.Context, cfg *godm.Config, logger *zap.Logger) (*Client, error) {
	conn, err := http.NewConnection(http.ConnectionConfig{Endpoints: cfg.Endpoints})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %v", cfg.Endpoints)
	}
	clientConfig := driver.ClientConfig{Connection: conn}
	if cfg.Username != "" {
		clientConfig.Authentication = driver.BasicAuthentication(cfg.Username, cfg.Password)
	}
	client, err := driver.NewClient(clientConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := client.Database(ctx, cfg.Database)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", cfg.Database)
	}
	return New(db, logger)
}

func New(db driver.Database, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collections, err := lru.New[string, driver.Collection](handleCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	graphs, err := lru.New[string, driver.Graph](handleCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Client{db: db, logger: logger, collections: collections, graphs: graphs}, nil
}

//Backend exposes the client as every collaborator of a session.
func (c *Client) Backend() godm.Backend {
	return godm.Backend{
		Documents:    c,
		Graphs:       c,
		Queries:      c,
		Transactions: c,
		Indexes:      c,
		Normalizer:   Normalizer{},
	}
}

func (c *Client) collection(ctx context.Context, name string) (driver.Collection, error) {
	if col, ok := c.collections.Get(name); ok {
		return col, nil
	}
	col, err := c.db.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	c.collections.Add(name, col)
	return col, nil
}

func (c *Client) graph(ctx context.Context, name string) (driver.Graph, error) {
	if g, ok := c.graphs.Get(name); ok {
		return g, nil
	}
	g, err := c.db.Graph(ctx, name)
	if err != nil {
		return nil, err
	}
	c.graphs.Add(name, g)
	return g, nil
}

func metaOf(meta driver.DocumentMeta) godm.DocumentMeta {
	return godm.DocumentMeta{ID: string(meta.ID), Key: meta.Key, Rev: meta.Rev}
}

//notFound turns a 404 from the server into godm.ErrNotFound.
func notFound(err error, collection, key string) error {
	if driver.IsNotFound(err) {
		return errors.Wrapf(godm.ErrNotFound, "%s/%s", collection, key)
	}
	return err
}

//Normalizer maps arango errors to their message and error number.
type Normalizer struct{}

func (Normalizer) Normalize(err error) (string, int) {
	if err == nil {
		return "", 0
	}
	if errors.Is(err, godm.ErrNotFound) {
		return err.Error(), 404
	}
	var arangoErr driver.ArangoError
	if errors.As(err, &arangoErr) {
		code := arangoErr.ErrorNum
		if code == 0 {
			code = arangoErr.Code
		}
		return arangoErr.ErrorMessage, code
	}
	return errors.Cause(err).Error(), 0
}
