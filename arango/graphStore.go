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

package arango

import (
	"context"

	driver "github.com/arangodb/go-driver"
	godm "github.com/disneystreaming/arango-go-odm"
)

func (c *Client) vertices(ctx context.Context, graph godm.Graph) (driver.Collection, error) {
	g, err := c.graph(ctx, graph.Name)
	if err != nil {
		return nil, err
	}
	return g.VertexCollection(ctx, graph.VertexCollection)
}

func (c *Client) edges(ctx context.Context, graph godm.Graph) (driver.Collection, error) {
	g, err := c.graph(ctx, graph.Name)
	if err != nil {
		return nil, err
	}
	col, _, err := g.EdgeCollection(ctx, graph.EdgeCollection)
	return col, err
}

//edgeDocument is the stored form of an edge: its attributes plus both endpoints and the label.
func edgeDocument(from, to, label string, doc godm.Row) godm.Row {
	edge := make(godm.Row, len(doc)+3)
	for k, v := range doc {
		edge[k] = v
	}
	edge["_from"] = from
	edge["_to"] = to
	if label != "" {
		edge["$label"] = label
	}
	return edge
}

func (c *Client) CreateVertex(ctx context.Context, graph godm.Graph, doc godm.Row) (godm.DocumentMeta, error) {
	col, err := c.vertices(ctx, graph)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	meta, err := col.CreateDocument(ctx, doc)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	return metaOf(meta), nil
}

func (c *Client) ReplaceVertex(ctx context.Context, graph godm.Graph, key string, doc godm.Row) (godm.DocumentMeta, error) {
	col, err := c.vertices(ctx, graph)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	meta, err := col.ReplaceDocument(ctx, key, doc)
	if err != nil {
		return godm.DocumentMeta{}, notFound(err, graph.VertexCollection, key)
	}
	return metaOf(meta), nil
}

func (c *Client) RemoveVertex(ctx context.Context, graph godm.Graph, key string) error {
	col, err := c.vertices(ctx, graph)
	if err != nil {
		return err
	}
	if _, err := col.RemoveDocument(ctx, key); err != nil {
		return notFound(err, graph.VertexCollection, key)
	}
	return nil
}

func (c *Client) ReadVertex(ctx context.Context, graph godm.Graph, key string) (godm.Row, error) {
	col, err := c.vertices(ctx, graph)
	if err != nil {
		return nil, err
	}
	var row godm.Row
	if _, err := col.ReadDocument(ctx, key, &row); err != nil {
		return nil, notFound(err, graph.VertexCollection, key)
	}
	return row, nil
}

func (c *Client) CreateEdge(ctx context.Context, graph godm.Graph, from, to, label string, doc godm.Row) (godm.DocumentMeta, error) {
	col, err := c.edges(ctx, graph)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	meta, err := col.CreateDocument(ctx, edgeDocument(from, to, label, doc))
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	return metaOf(meta), nil
}

func (c *Client) RemoveEdge(ctx context.Context, graph godm.Graph, key string) error {
	col, err := c.edges(ctx, graph)
	if err != nil {
		return err
	}
	if _, err := col.RemoveDocument(ctx, key); err != nil {
		return notFound(err, graph.EdgeCollection, key)
	}
	return nil
}

func (c *Client) ReadEdge(ctx context.Context, graph godm.Graph, key string) (godm.Row, error) {
	col, err := c.edges(ctx, graph)
	if err != nil {
		return nil, err
	}
	var row godm.Row
	if _, err := col.ReadDocument(ctx, key, &row); err != nil {
		return nil, notFound(err, graph.EdgeCollection, key)
	}
	return row, nil
}

func (c *Client) ConnectedEdges(ctx context.Context, graph godm.Graph, vertexID string, filter godm.EdgeFilter) ([]godm.Row, error) {
	query, params, err := godm.TraversalQuery(graph, vertexID, filter, false)
	if err != nil {
		return nil, err
	}
	return c.ExecuteAll(ctx, query, params)
}

func (c *Client) NeighborVertices(ctx context.Context, graph godm.Graph, vertexID string, filter godm.EdgeFilter) ([]godm.Row, error) {
	query, params, err := godm.TraversalQuery(graph, vertexID, filter, true)
	if err != nil {
		return nil, err
	}
	return c.ExecuteAll(ctx, query, params)
}
