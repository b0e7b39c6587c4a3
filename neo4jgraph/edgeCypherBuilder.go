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
	"fmt"
	"strings"

	godm "github.com/disneystreaming/arango-go-odm"
	"github.com/pkg/errors"
)

//Cypher counterparts of the AQL compare operators accepted in property filters.
var cypherOperators = map[string]string{
	"==":     "=",
	"!=":     "<>",
	"<":      "<",
	"<=":     "<=",
	">":      ">",
	">=":     ">=",
	"IN":     "IN",
	"NOT IN": "IN",
	"=~":     "=~",
}

func quoteLabel(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

type edgeCypherBuilder struct {
	graph godm.Graph
}

func newEdgeCypherBuilder(graph godm.Graph) edgeCypherBuilder {
	return edgeCypherBuilder{graph}
}

func (b edgeCypherBuilder) edgeType() string {
	return quoteLabel(b.graph.EdgeCollection)
}

func (b edgeCypherBuilder) vertexLabel() string {
	return quoteLabel(b.graph.VertexCollection)
}

func (b edgeCypherBuilder) getCreate() string {
	return `MATCH (a:` + b.vertexLabel() + ` {_id: $from}), (b:` + b.vertexLabel() + ` {_id: $to})
	CREATE (a)-[e:` + b.edgeType() + ` $props]->(b)
	RETURN e._id AS id, e._key AS key, e._rev AS rev`
}

func (b edgeCypherBuilder) getMatch() string {
	return `MATCH ()-[e:` + b.edgeType() + ` {_key: $key}]->()
	`
}

func (b edgeCypherBuilder) getRead() string {
	return b.getMatch() + `RETURN properties(e) AS doc`
}

func (b edgeCypherBuilder) getDelete() string {
	return b.getMatch() + `WITH e, e._id AS id
	DELETE e
	RETURN count(id) AS removed`
}

func (b edgeCypherBuilder) pattern(direction godm.Direction) string {
	edge := `[e:` + b.edgeType() + `]`
	switch direction {
	case godm.Inbound:
		return `(v:` + b.vertexLabel() + ` {_id: $id})<-` + edge + `-(n)`
	case godm.Outbound:
		return `(v:` + b.vertexLabel() + ` {_id: $id})-` + edge + `->(n)`
	}
	return `(v:` + b.vertexLabel() + ` {_id: $id})-` + edge + `-(n)`
}

//getTraversal returns the edges, or the distinct neighbours, of the vertex bound to $id.
func (b edgeCypherBuilder) getTraversal(filter godm.EdgeFilter, neighbours bool) (string, map[string]any, error) {
	var (
		conditions []string
		parameters = map[string]any{}
	)
	if len(filter.Labels) > 0 {
		conditions = append(conditions, "e.`$label` IN $labels")
		parameters["labels"] = filter.Labels
	}
	for i, property := range filter.Properties {
		op := strings.ToUpper(strings.TrimSpace(property.CompareOperator))
		if op == "" {
			op = "=="
		}
		cypherOp, ok := cypherOperators[op]
		if !ok {
			return "", nil, errors.Wrapf(godm.ErrInvalidPropertyOp, "%q has no cypher equivalent", property.CompareOperator)
		}
		key, value := fmt.Sprintf("pk%d", i), fmt.Sprintf("pv%d", i)
		condition := fmt.Sprintf("e[$%s] %s $%s", key, cypherOp, value)
		if op == "NOT IN" {
			condition = "NOT " + condition
		}
		conditions = append(conditions, condition)
		parameters[key] = property.Key
		parameters[value] = property.Value
	}

	cypher := `MATCH ` + b.pattern(filter.Direction) + `
	`
	if len(conditions) > 0 {
		cypher += `WHERE ` + strings.Join(conditions, " AND ") + `
	`
	}
	if neighbours {
		cypher += `RETURN DISTINCT properties(n) AS doc`
	} else {
		cypher += `RETURN properties(e) AS doc`
	}
	return cypher, parameters, nil
}

type vertexCypherBuilder struct {
	graph godm.Graph
}

func (b vertexCypherBuilder) label() string {
	return quoteLabel(b.graph.VertexCollection)
}

func (b vertexCypherBuilder) getCreate() string {
	return `CREATE (v:` + b.label() + ` $props)
	RETURN v._id AS id, v._key AS key, v._rev AS rev`
}

func (b vertexCypherBuilder) getReplace() string {
	return `MATCH (v:` + b.label() + ` {_key: $key})
	SET v = $props
	RETURN v._id AS id, v._key AS key, v._rev AS rev`
}

func (b vertexCypherBuilder) getRead() string {
	return `MATCH (v:` + b.label() + ` {_key: $key})
	RETURN properties(v) AS doc`
}

func (b vertexCypherBuilder) getDelete() string {
	return `MATCH (v:` + b.label() + ` {_key: $key})
	WITH v, v._id AS id
	DETACH DELETE v
	RETURN count(id) AS removed`
}
