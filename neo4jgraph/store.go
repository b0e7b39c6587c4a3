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

//Package neo4jgraph stores godm vertices as nodes and edges as relationships of a neo4j
//database. Vertices carry the vertex collection as label, edges the edge collection as type,
//and both keep `_id`, `_key` and `_rev` as properties so godm identities survive the round trip.
//It only serves immediate operations: scripted transactions stay with the document server.
package neo4jgraph

import (
	"context"
	"strings"

	godm "github.com/disneystreaming/arango-go-odm"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Store struct {
	cypherExecuter *cypherExecuter
	logger         *zap.Logger
}

var _ godm.GraphStore = (*Store)(nil)

func New(driver neo4j.Driver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cypherExecuter: newCypherExecuter(driver), logger: logger}
}

//Open connects to the server described by cfg.
func Open(cfg godm.Neo4jConfig, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriver(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.URI)
	}
	return New(driver, logger), nil
}

func (s *Store) Close() error {
	return s.cypherExecuter.driver.Close()
}

func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newRev() string {
	return uuid.NewString()[:8]
}

//identify fills in the identity properties a document needs before it is written.
func identify(collection string, doc godm.Row) godm.Row {
	props := make(godm.Row, len(doc)+3)
	for k, v := range doc {
		props[k] = v
	}
	key, _ := props["_key"].(string)
	if key == "" {
		key = newKey()
	}
	props["_key"] = key
	props["_id"] = collection + "/" + key
	props["_rev"] = newRev()
	return props
}

func metaOf(records []*neo4j.Record) (godm.DocumentMeta, error) {
	if len(records) == 0 {
		return godm.DocumentMeta{}, godm.ErrNotFound
	}
	record := records[0]
	id, _ := record.Get("id")
	key, _ := record.Get("key")
	rev, _ := record.Get("rev")
	meta := godm.DocumentMeta{}
	meta.ID, _ = id.(string)
	meta.Key, _ = key.(string)
	meta.Rev, _ = rev.(string)
	return meta, nil
}

func docOf(records []*neo4j.Record) (godm.Row, error) {
	rows := docsOf(records)
	if len(rows) == 0 {
		return nil, godm.ErrNotFound
	}
	return rows[0], nil
}

func docsOf(records []*neo4j.Record) []godm.Row {
	rows := make([]godm.Row, 0, len(records))
	for _, record := range records {
		if doc, ok := record.Get("doc"); ok {
			if row, ok := doc.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
	}
	return rows
}

func removed(records []*neo4j.Record) error {
	if len(records) == 0 {
		return godm.ErrNotFound
	}
	if n, _ := records[0].Get("removed"); n == int64(0) {
		return godm.ErrNotFound
	}
	return nil
}

func (s *Store) CreateVertex(ctx context.Context, graph godm.Graph, doc godm.Row) (godm.DocumentMeta, error) {
	records, err := s.cypherExecuter.write(ctx, vertexCypherBuilder{graph}.getCreate(), map[string]any{
		"props": identify(graph.VertexCollection, doc),
	})
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	return metaOf(records)
}

func (s *Store) ReplaceVertex(ctx context.Context, graph godm.Graph, key string, doc godm.Row) (godm.DocumentMeta, error) {
	props := identify(graph.VertexCollection, doc)
	props["_key"] = key
	props["_id"] = graph.VertexCollection + "/" + key
	records, err := s.cypherExecuter.write(ctx, vertexCypherBuilder{graph}.getReplace(), map[string]any{"key": key, "props": props})
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	return metaOf(records)
}

func (s *Store) RemoveVertex(ctx context.Context, graph godm.Graph, key string) error {
	records, err := s.cypherExecuter.write(ctx, vertexCypherBuilder{graph}.getDelete(), map[string]any{"key": key})
	if err != nil {
		return err
	}
	return removed(records)
}

func (s *Store) ReadVertex(ctx context.Context, graph godm.Graph, key string) (godm.Row, error) {
	records, err := s.cypherExecuter.read(ctx, vertexCypherBuilder{graph}.getRead(), map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	return docOf(records)
}

func (s *Store) CreateEdge(ctx context.Context, graph godm.Graph, from, to, label string, doc godm.Row) (godm.DocumentMeta, error) {
	props := identify(graph.EdgeCollection, doc)
	props["_from"] = from
	props["_to"] = to
	if label != "" {
		props["$label"] = label
	}
	records, err := s.cypherExecuter.write(ctx, newEdgeCypherBuilder(graph).getCreate(), map[string]any{
		"from":  from,
		"to":    to,
		"props": props,
	})
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	if len(records) == 0 {
		return godm.DocumentMeta{}, errors.Wrapf(godm.ErrNotFound, "vertices %s and %s", from, to)
	}
	return metaOf(records)
}

func (s *Store) RemoveEdge(ctx context.Context, graph godm.Graph, key string) error {
	records, err := s.cypherExecuter.write(ctx, newEdgeCypherBuilder(graph).getDelete(), map[string]any{"key": key})
	if err != nil {
		return err
	}
	return removed(records)
}

func (s *Store) ReadEdge(ctx context.Context, graph godm.Graph, key string) (godm.Row, error) {
	records, err := s.cypherExecuter.read(ctx, newEdgeCypherBuilder(graph).getRead(), map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	return docOf(records)
}

func (s *Store) ConnectedEdges(ctx context.Context, graph godm.Graph, vertexID string, filter godm.EdgeFilter) ([]godm.Row, error) {
	return s.traverse(ctx, graph, vertexID, filter, false)
}

func (s *Store) NeighborVertices(ctx context.Context, graph godm.Graph, vertexID string, filter godm.EdgeFilter) ([]godm.Row, error) {
	return s.traverse(ctx, graph, vertexID, filter, true)
}

func (s *Store) traverse(ctx context.Context, graph godm.Graph, vertexID string, filter godm.EdgeFilter, neighbours bool) ([]godm.Row, error) {
	cypher, params, err := newEdgeCypherBuilder(graph).getTraversal(filter, neighbours)
	if err != nil {
		return nil, err
	}
	params["id"] = vertexID
	s.logger.Debug("neo4j traversal", zap.String("vertex", vertexID), zap.Bool("neighbours", neighbours))
	records, err := s.cypherExecuter.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return docsOf(records), nil
}

//Normalizer maps neo4j errors to a message and an HTTP like status code.
type Normalizer struct{}

func (Normalizer) Normalize(err error) (string, int) {
	if errors.Is(err, godm.ErrNotFound) {
		return err.Error(), 404
	}
	var neo4jErr *neo4j.Neo4jError
	if errors.As(err, &neo4jErr) {
		switch {
		case strings.Contains(neo4jErr.Code, ".ClientError."):
			return neo4jErr.Msg, 400
		case strings.Contains(neo4jErr.Code, ".TransientError."):
			return neo4jErr.Msg, 503
		}
		return neo4jErr.Msg, 500
	}
	return errors.Cause(err).Error(), 0
}
