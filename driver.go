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

import "context"

//Row is a plain key-value document as returned by a driver.
type Row = map[string]any

//DocumentMeta identifies a stored document revision.
type DocumentMeta struct {
	ID  string
	Key string
	Rev string
}

//Graph names a server-side graph and its dedicated collections.
type Graph struct {
	Name             string `toml:"name"`
	VertexCollection string `toml:"vertex-collection"`
	EdgeCollection   string `toml:"edge-collection"`
}

//Direction of an edge relative to a vertex.
type Direction string

const (
	AnyDirection Direction = ""
	Inbound      Direction = "in"
	Outbound     Direction = "out"
)

//PropertyFilter is a `key <op> value` condition evaluated on edges.
type PropertyFilter struct {
	Key             string
	Value           any
	CompareOperator string
}

//EdgeFilter narrows an edge or neighbour traversal.
type EdgeFilter struct {
	Direction  Direction
	Labels     []string
	Properties []PropertyFilter
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, collection string, doc Row) (DocumentMeta, error)
	ReplaceDocument(ctx context.Context, collection, key string, doc Row) (DocumentMeta, error)
	RemoveDocument(ctx context.Context, collection, key string) error
	ReadDocument(ctx context.Context, collection, key string) (Row, error)
	//AnyDocument returns a nil row when the collection is empty.
	AnyDocument(ctx context.Context, collection string) (Row, error)
}

type GraphStore interface {
	CreateVertex(ctx context.Context, graph Graph, doc Row) (DocumentMeta, error)
	ReplaceVertex(ctx context.Context, graph Graph, key string, doc Row) (DocumentMeta, error)
	RemoveVertex(ctx context.Context, graph Graph, key string) error
	ReadVertex(ctx context.Context, graph Graph, key string) (Row, error)
	//CreateEdge stores doc as an edge from one vertex id to another. doc may carry a `_key`.
	CreateEdge(ctx context.Context, graph Graph, from, to, label string, doc Row) (DocumentMeta, error)
	RemoveEdge(ctx context.Context, graph Graph, key string) error
	ReadEdge(ctx context.Context, graph Graph, key string) (Row, error)
	ConnectedEdges(ctx context.Context, graph Graph, vertexID string, filter EdgeFilter) ([]Row, error)
	NeighborVertices(ctx context.Context, graph Graph, vertexID string, filter EdgeFilter) ([]Row, error)
}

type QueryExecutor interface {
	ExecuteAll(ctx context.Context, query string, bindParams map[string]any) ([]Row, error)
	//ExecuteOne returns a nil row when the query yields nothing.
	ExecuteOne(ctx context.Context, query string, bindParams map[string]any) (Row, error)
	Explain(ctx context.Context, query string, bindParams map[string]any) (map[string]any, error)
}

//ScriptedTransactionRunner executes a server-side transaction body atomically.
type ScriptedTransactionRunner interface {
	Run(ctx context.Context, script string, readCollections, writeCollections []string, params map[string]any) (any, error)
}

//IndexInspector reports the fields of a collection's geo index, or nil when there is none.
type IndexInspector interface {
	GeoIndexFields(ctx context.Context, collection string) ([]string, error)
}

//Backend bundles every collaborator a Session needs. GraphStore may be nil in document mode.
type Backend struct {
	Documents    DocumentStore
	Graphs       GraphStore
	Queries      QueryExecutor
	Transactions ScriptedTransactionRunner
	Indexes      IndexInspector
	Normalizer   ErrorNormalizer
}
