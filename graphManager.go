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
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var compareOperators = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"IN": true, "NOT IN": true, "LIKE": true, "=~": true, "!~": true,
}

//NewEdgeFilter accepts label as nil, a single label or a list of labels.
func NewEdgeFilter(direction Direction, label any, properties ...PropertyFilter) (EdgeFilter, error) {
	filter := EdgeFilter{Direction: direction, Properties: properties}
	switch l := label.(type) {
	case nil:
	case string:
		if l != "" {
			filter.Labels = []string{l}
		}
	case []string:
		filter.Labels = l
	default:
		return EdgeFilter{}, errors.Wrapf(ErrGraph, "label must be a string or a list of strings, got %T", label)
	}
	return filter, nil
}

//TraversalQuery builds the one step AQL traversal returning the edges, or the distinct
//neighbour vertices, of vertexID that match filter.
func TraversalQuery(graph Graph, vertexID string, filter EdgeFilter, neighbours bool) (string, map[string]any, error) {
	direction := "ANY"
	switch filter.Direction {
	case Inbound:
		direction = "INBOUND"
	case Outbound:
		direction = "OUTBOUND"
	}
	params := map[string]any{"start": vertexID, "graph": graph.Name}
	clauses := []string{fmt.Sprintf("FOR v, e IN 1..1 %s @start GRAPH @graph", direction)}
	if len(filter.Labels) > 0 {
		clauses = append(clauses, "FILTER e.`$label` IN @labels")
		params["labels"] = filter.Labels
	}
	for i, property := range filter.Properties {
		op := strings.ToUpper(strings.TrimSpace(property.CompareOperator))
		if op == "" {
			op = "=="
		}
		if !compareOperators[op] {
			return "", nil, errors.Wrapf(ErrGraph, "%v %q", ErrInvalidPropertyOp, property.CompareOperator)
		}
		key, value := fmt.Sprintf("pk%d", i), fmt.Sprintf("pv%d", i)
		clauses = append(clauses, fmt.Sprintf("FILTER e.@%s %s @%s", key, op, value))
		params[key] = property.Key
		params[value] = property.Value
	}
	if neighbours {
		clauses = append(clauses, "RETURN DISTINCT v")
	} else {
		clauses = append(clauses, "RETURN e")
	}
	return strings.Join(clauses, " "), params, nil
}

type GraphManager struct {
	pm         *PodManager
	graphs     GraphStore
	tm         *TransactionManager
	graph      Graph
	normalizer ErrorNormalizer
	logger     *zap.Logger
}

func NewGraphManager(pm *PodManager, graphs GraphStore, tm *TransactionManager, graph Graph, normalizer ErrorNormalizer, logger *zap.Logger) *GraphManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GraphManager{pm: pm, graphs: graphs, tm: tm, graph: graph, normalizer: normalizer, logger: logger}
	tm.registerAction(ActionGetEdges, func(*Command) replayer { return g.replay(EdgePod) })
	tm.registerAction(ActionGetNeighbours, func(*Command) replayer { return g.replay(VertexPod) })
	return g
}

func (g *GraphManager) GetInboundEdges(ctx context.Context, vertex any, filter EdgeFilter) (Models, error) {
	filter.Direction = Inbound
	return g.traverse(ctx, vertex, filter, EdgePod)
}

func (g *GraphManager) GetOutboundEdges(ctx context.Context, vertex any, filter EdgeFilter) (Models, error) {
	filter.Direction = Outbound
	return g.traverse(ctx, vertex, filter, EdgePod)
}

//GetEdges follows filter.Direction, any direction when unset.
func (g *GraphManager) GetEdges(ctx context.Context, vertex any, filter EdgeFilter) (Models, error) {
	return g.traverse(ctx, vertex, filter, EdgePod)
}

func (g *GraphManager) GetNeighbours(ctx context.Context, vertex any, filter EdgeFilter) (Models, error) {
	return g.traverse(ctx, vertex, filter, VertexPod)
}

//vertexID accepts a model, a pod or an id. A missing vertex has no id.
func vertexID(vertex any) (string, error) {
	if vertex == nil {
		return "", nil
	}
	if rv := reflect.ValueOf(vertex); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "", nil
	}
	switch v := vertex.(type) {
	case Model:
		if v.Pod() == nil {
			return "", nil
		}
		return v.Pod().ID(), nil
	case *Pod:
		return v.ID(), nil
	case string:
		return v, nil
	}
	return "", errors.Wrapf(ErrGraph, "vertex must be a model, a pod or an id, got %T", vertex)
}

func (g *GraphManager) traverse(ctx context.Context, vertex any, filter EdgeFilter, target PodKind) (Models, error) {
	id, err := vertexID(vertex)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return Models{}, nil
	}

	if g.tm.Mode() == Buffered {
		query, params, err := TraversalQuery(g.graph, id, filter, target == VertexPod)
		if err != nil {
			return nil, err
		}
		script, err := queryScript(query, params)
		if err != nil {
			return nil, err
		}
		action := ActionGetEdges
		if target == VertexPod {
			action = ActionGetNeighbours
		}
		if _, err := g.tm.add(&Command{Script: script, Action: action, Graph: true, replay: g.replay(target)}); err != nil {
			return nil, err
		}
		if err := g.tm.AddReadCollection(g.graph.VertexCollection); err != nil {
			return nil, err
		}
		return nil, g.tm.AddReadCollection(g.graph.EdgeCollection)
	}

	var rows []Row
	if target == VertexPod {
		rows, err = g.graphs.NeighborVertices(ctx, g.graph, id, filter)
	} else {
		rows, err = g.graphs.ConnectedEdges(ctx, g.graph, id, filter)
	}
	observeDriverCall("traverse", err)
	if err != nil {
		g.logger.Debug("traversal failed", zap.String("vertex", id), zap.Error(err))
		return nil, normalize(g.normalizer, ErrGraph, err)
	}
	return g.convert(rows, target)
}

//Drivers return edges and vertices as plain documents, the kind comes from the traversal.
func (g *GraphManager) convert(rows []Row, kind PodKind) (Models, error) {
	docs := make([]RawDocument, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, RawDocument{Row: row, Kind: kind, Typed: true})
	}
	return g.pm.ConvertToModels(kind.String(), docs)
}

func (g *GraphManager) replay(kind PodKind) replayer {
	return replayFunc(func(_ context.Context, raw any) (any, error) {
		rows, err := rowsOf(raw)
		if err != nil {
			return nil, err
		}
		return g.convert(rows, kind)
	})
}
