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

package neo4jgraph

import (
	"errors"
	"strings"
	"testing"

	godm "github.com/disneystreaming/arango-go-odm"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/stretchr/testify/require"
)

var testGraph = godm.Graph{Name: "social", VertexCollection: "people", EdgeCollection: "knows"}

func TestTraversalDirection(t *testing.T) {
	b := newEdgeCypherBuilder(testGraph)

	cypher, params, err := b.getTraversal(godm.EdgeFilter{Direction: godm.Inbound}, false)
	require.NoError(t, err)
	require.Contains(t, cypher, "(v:`people` {_id: $id})<-[e:`knows`]-(n)")
	require.Contains(t, cypher, "RETURN properties(e) AS doc")
	require.NotContains(t, cypher, "WHERE")
	require.Empty(t, params)

	cypher, _, err = b.getTraversal(godm.EdgeFilter{Direction: godm.Outbound}, true)
	require.NoError(t, err)
	require.Contains(t, cypher, "(v:`people` {_id: $id})-[e:`knows`]->(n)")
	require.Contains(t, cypher, "RETURN DISTINCT properties(n) AS doc")

	cypher, _, err = b.getTraversal(godm.EdgeFilter{}, false)
	require.NoError(t, err)
	require.Contains(t, cypher, "-[e:`knows`]-(n)")
}

func TestTraversalFilters(t *testing.T) {
	b := newEdgeCypherBuilder(testGraph)
	filter := godm.EdgeFilter{
		Labels: []string{"friend"},
		Properties: []godm.PropertyFilter{
			{Key: "since", Value: 2010, CompareOperator: ">="},
			{Key: "kind", Value: []string{"blocked"}, CompareOperator: "not in"},
			{Key: "trusted", Value: true},
		},
	}
	cypher, params, err := b.getTraversal(filter, false)
	require.NoError(t, err)
	require.Contains(t, cypher, "WHERE e.`$label` IN $labels AND e[$pk0] >= $pv0 AND NOT e[$pk1] IN $pv1 AND e[$pk2] = $pv2")
	require.Equal(t, []string{"friend"}, params["labels"])
	require.Equal(t, "since", params["pk0"])
	require.Equal(t, 2010, params["pv0"])
	require.Equal(t, "trusted", params["pk2"])
}

func TestTraversalRejectsUnknownOperator(t *testing.T) {
	_, _, err := newEdgeCypherBuilder(testGraph).getTraversal(godm.EdgeFilter{
		Properties: []godm.PropertyFilter{{Key: "name", Value: "a%", CompareOperator: "LIKE"}},
	}, false)
	require.ErrorIs(t, err, godm.ErrInvalidPropertyOp)
}

func TestQuoteLabel(t *testing.T) {
	require.Equal(t, "`plain`", quoteLabel("plain"))
	require.Equal(t, "`we``ird`", quoteLabel("we`ird"))
}

func TestVertexStatements(t *testing.T) {
	b := vertexCypherBuilder{testGraph}
	require.True(t, strings.HasPrefix(b.getCreate(), "CREATE (v:`people` $props)"))
	require.Contains(t, b.getReplace(), "SET v = $props")
	require.Contains(t, b.getDelete(), "DETACH DELETE v")
	require.Contains(t, b.getRead(), "properties(v) AS doc")
}

func TestEdgeStatements(t *testing.T) {
	b := newEdgeCypherBuilder(testGraph)
	require.Contains(t, b.getCreate(), "CREATE (a)-[e:`knows` $props]->(b)")
	require.Contains(t, b.getRead(), "MATCH ()-[e:`knows` {_key: $key}]->()")
	require.Contains(t, b.getDelete(), "RETURN count(id) AS removed")
}

func TestIdentify(t *testing.T) {
	props := identify("people", godm.Row{"name": "ada"})
	require.Equal(t, "ada", props["name"])
	key := props["_key"].(string)
	require.Len(t, key, 32)
	require.Equal(t, "people/"+key, props["_id"])
	require.NotEmpty(t, props["_rev"])

	kept := identify("people", godm.Row{"_key": "ada"})
	require.Equal(t, "people/ada", kept["_id"])
}

func TestRecordDecoding(t *testing.T) {
	meta, err := metaOf([]*neo4j.Record{{Keys: []string{"id", "key", "rev"}, Values: []any{"people/a", "a", "r1"}}})
	require.NoError(t, err)
	require.Equal(t, godm.DocumentMeta{ID: "people/a", Key: "a", Rev: "r1"}, meta)

	_, err = metaOf(nil)
	require.ErrorIs(t, err, godm.ErrNotFound)

	_, err = docOf(nil)
	require.ErrorIs(t, err, godm.ErrNotFound)

	rows := docsOf([]*neo4j.Record{
		{Keys: []string{"doc"}, Values: []any{map[string]any{"_id": "people/a"}}},
		{Keys: []string{"doc"}, Values: []any{nil}},
	})
	require.Len(t, rows, 1)

	require.ErrorIs(t, removed([]*neo4j.Record{{Keys: []string{"removed"}, Values: []any{int64(0)}}}), godm.ErrNotFound)
	require.NoError(t, removed([]*neo4j.Record{{Keys: []string{"removed"}, Values: []any{int64(1)}}}))
}

func TestNormalizer(t *testing.T) {
	n := Normalizer{}

	msg, code := n.Normalize(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad"})
	require.Equal(t, "bad", msg)
	require.Equal(t, 400, code)

	_, code = n.Normalize(&neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "down"})
	require.Equal(t, 503, code)

	_, code = n.Normalize(&neo4j.Neo4jError{Code: "Neo.DatabaseError.General.UnknownError", Msg: "boom"})
	require.Equal(t, 500, code)

	_, code = n.Normalize(godm.ErrNotFound)
	require.Equal(t, 404, code)

	msg, code = n.Normalize(errors.New("plain"))
	require.Equal(t, "plain", msg)
	require.Equal(t, 0, code)
}
