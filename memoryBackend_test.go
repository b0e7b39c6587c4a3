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
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

//memoryBackend keeps collections in maps and interprets the transaction scripts and
//queries this package generates, closely enough to observe their effects.
type memoryBackend struct {
	graph       Graph
	collections map[string]map[string]Row
	order       map[string][]string
	geo         map[string][]string
	seq         int

	queries  []recordedQuery
	scripts  []recordedScript
	runErr   error
	storeErr error
}

type recordedQuery struct {
	query  string
	params map[string]any
}

type recordedScript struct {
	script string
	reads  []string
	writes []string
}

func newMemoryBackend(graph Graph) *memoryBackend {
	return &memoryBackend{
		graph:       graph,
		collections: map[string]map[string]Row{},
		order:       map[string][]string{},
		geo:         map[string][]string{},
	}
}

func (b *memoryBackend) backend() Backend {
	return Backend{Documents: b, Graphs: b, Queries: b, Transactions: b, Indexes: b}
}

func copyRow(row Row) Row {
	if row == nil {
		return nil
	}
	c := make(Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}

//put inserts or overwrites a document, keeping insertion order for new keys.
func (b *memoryBackend) put(collection string, doc Row) Row {
	docs, ok := b.collections[collection]
	if !ok {
		docs = map[string]Row{}
		b.collections[collection] = docs
	}
	stored := copyRow(doc)
	key, _ := stored[keyField].(string)
	if key == "" {
		b.seq++
		key = fmt.Sprintf("k%d", b.seq)
	}
	if _, exists := docs[key]; !exists {
		b.order[collection] = append(b.order[collection], key)
	}
	b.seq++
	stored[keyField] = key
	stored[idField] = collection + "/" + key
	stored[revField] = fmt.Sprintf("r%d", b.seq)
	docs[key] = stored
	return stored
}

func (b *memoryBackend) get(collection, key string) (Row, error) {
	doc, ok := b.collections[collection][key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", collection, key)
	}
	return copyRow(doc), nil
}

func (b *memoryBackend) delete(collection, key string) error {
	if _, ok := b.collections[collection][key]; !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, key)
	}
	delete(b.collections[collection], key)
	keys := b.order[collection]
	for i, k := range keys {
		if k == key {
			b.order[collection] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

func (b *memoryBackend) all(collection string) []Row {
	rows := make([]Row, 0, len(b.order[collection]))
	for _, key := range b.order[collection] {
		rows = append(rows, copyRow(b.collections[collection][key]))
	}
	return rows
}

func (b *memoryBackend) count(collection string) int {
	return len(b.collections[collection])
}

func metaOfRow(row Row) DocumentMeta {
	id, _ := row[idField].(string)
	key, _ := row[keyField].(string)
	rev, _ := row[revField].(string)
	return DocumentMeta{ID: id, Key: key, Rev: rev}
}

func (b *memoryBackend) CreateDocument(_ context.Context, collection string, doc Row) (DocumentMeta, error) {
	if b.storeErr != nil {
		return DocumentMeta{}, b.storeErr
	}
	return metaOfRow(b.put(collection, doc)), nil
}

func (b *memoryBackend) ReplaceDocument(_ context.Context, collection, key string, doc Row) (DocumentMeta, error) {
	if b.storeErr != nil {
		return DocumentMeta{}, b.storeErr
	}
	if _, err := b.get(collection, key); err != nil {
		return DocumentMeta{}, err
	}
	doc = copyRow(doc)
	doc[keyField] = key
	return metaOfRow(b.put(collection, doc)), nil
}

func (b *memoryBackend) RemoveDocument(_ context.Context, collection, key string) error {
	return b.delete(collection, key)
}

func (b *memoryBackend) ReadDocument(_ context.Context, collection, key string) (Row, error) {
	return b.get(collection, key)
}

func (b *memoryBackend) AnyDocument(_ context.Context, collection string) (Row, error) {
	rows := b.all(collection)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (b *memoryBackend) CreateVertex(ctx context.Context, graph Graph, doc Row) (DocumentMeta, error) {
	return b.CreateDocument(ctx, graph.VertexCollection, doc)
}

func (b *memoryBackend) ReplaceVertex(ctx context.Context, graph Graph, key string, doc Row) (DocumentMeta, error) {
	return b.ReplaceDocument(ctx, graph.VertexCollection, key, doc)
}

func (b *memoryBackend) RemoveVertex(_ context.Context, graph Graph, key string) error {
	return b.delete(graph.VertexCollection, key)
}

func (b *memoryBackend) ReadVertex(_ context.Context, graph Graph, key string) (Row, error) {
	return b.get(graph.VertexCollection, key)
}

func (b *memoryBackend) CreateEdge(_ context.Context, graph Graph, from, to, label string, doc Row) (DocumentMeta, error) {
	if b.storeErr != nil {
		return DocumentMeta{}, b.storeErr
	}
	edge := copyRow(doc)
	if edge == nil {
		edge = Row{}
	}
	edge[fromField] = from
	edge[toField] = to
	if label != "" {
		edge[labelField] = label
	}
	return metaOfRow(b.put(graph.EdgeCollection, edge)), nil
}

func (b *memoryBackend) RemoveEdge(_ context.Context, graph Graph, key string) error {
	return b.delete(graph.EdgeCollection, key)
}

func (b *memoryBackend) ReadEdge(_ context.Context, graph Graph, key string) (Row, error) {
	return b.get(graph.EdgeCollection, key)
}

func (b *memoryBackend) matchingEdges(graph Graph, vertexID string, filter EdgeFilter) ([]Row, []string) {
	var (
		edges     []Row
		neighbors []string
	)
	for _, edge := range b.all(graph.EdgeCollection) {
		from, _ := edge[fromField].(string)
		to, _ := edge[toField].(string)
		var other string
		switch {
		case filter.Direction != Inbound && from == vertexID:
			other = to
		case filter.Direction != Outbound && to == vertexID:
			other = from
		default:
			continue
		}
		if len(filter.Labels) > 0 {
			label, _ := edge[labelField].(string)
			found := false
			for _, l := range filter.Labels {
				found = found || l == label
			}
			if !found {
				continue
			}
		}
		matches := true
		for _, p := range filter.Properties {
			matches = matches && fmt.Sprint(edge[p.Key]) == fmt.Sprint(p.Value)
		}
		if !matches {
			continue
		}
		edges = append(edges, edge)
		neighbors = append(neighbors, other)
	}
	return edges, neighbors
}

func (b *memoryBackend) ConnectedEdges(_ context.Context, graph Graph, vertexID string, filter EdgeFilter) ([]Row, error) {
	edges, _ := b.matchingEdges(graph, vertexID, filter)
	return edges, nil
}

func (b *memoryBackend) NeighborVertices(_ context.Context, graph Graph, vertexID string, filter EdgeFilter) ([]Row, error) {
	_, ids := b.matchingEdges(graph, vertexID, filter)
	seen := map[string]bool{}
	var rows []Row
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if row, err := b.get(collectionOf(id), id[strings.Index(id, "/")+1:]); err == nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (b *memoryBackend) GeoIndexFields(_ context.Context, collection string) ([]string, error) {
	return b.geo[collection], nil
}

var (
	geoCallPattern   = regexp.MustCompile(`(NEAR|WITHIN)\(@@collection, @(\w+), @(\w+), @(\w+), @(\w+)\)`)
	fulltextPattern  = regexp.MustCompile(`FULLTEXT\(@@collection, @(\w+), @(\w+)\)`)
	equalsPattern    = regexp.MustCompile(`(\w+)\.(\w+) == @(\w+)`)
	excludePattern   = regexp.MustCompile(`(\w+)\._id != @(\w+)`)
	limitPattern     = regexp.MustCompile(`LIMIT (\d+)`)
	directionPattern = regexp.MustCompile(`1\.\.1 (ANY|INBOUND|OUTBOUND) @start`)
	propertyPattern  = regexp.MustCompile(`FILTER e\.@(pk\d+) (\S+) @(pv\d+)`)
)

func (b *memoryBackend) ExecuteAll(_ context.Context, query string, params map[string]any) ([]Row, error) {
	b.queries = append(b.queries, recordedQuery{query, params})
	return b.evaluate(query, params)
}

func (b *memoryBackend) ExecuteOne(ctx context.Context, query string, params map[string]any) (Row, error) {
	rows, err := b.ExecuteAll(ctx, query, params)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (b *memoryBackend) Explain(_ context.Context, query string, _ map[string]any) (map[string]any, error) {
	return map[string]any{"query": query}, nil
}

func (b *memoryBackend) lastQuery() recordedQuery {
	if len(b.queries) == 0 {
		return recordedQuery{}
	}
	return b.queries[len(b.queries)-1]
}

func (b *memoryBackend) evaluate(query string, params map[string]any) ([]Row, error) {
	if strings.Contains(query, "GRAPH @graph") {
		return b.traversal(query, params)
	}
	collection, _ := params["@collection"].(string)
	rows := b.all(collection)

	if m := geoCallPattern.FindStringSubmatch(query); m != nil {
		lat, _ := toFloat(params[m[2]])
		lon, _ := toFloat(params[m[3]])
		distance, _ := params[m[5]].(string)
		rows = b.byDistance(collection, rows, lat, lon, distance)
		switch m[1] {
		case "NEAR":
			if limit, ok := toFloat(params[m[4]]); ok && int(limit) < len(rows) {
				rows = rows[:int(limit)]
			}
		case "WITHIN":
			radius, _ := toFloat(params[m[4]])
			rows = filterRows(rows, func(row Row) bool {
				d, _ := toFloat(row[distance])
				return d <= radius
			})
		}
	}
	if m := fulltextPattern.FindStringSubmatch(query); m != nil {
		attribute, _ := params[m[1]].(string)
		term, _ := params[m[2]].(string)
		rows = filterRows(rows, func(row Row) bool {
			s, ok := row[attribute].(string)
			return ok && strings.Contains(strings.ToLower(s), strings.ToLower(term))
		})
	}

	for _, m := range equalsPattern.FindAllStringSubmatch(query, -1) {
		rows = filterRows(rows, func(row Row) bool { return fmt.Sprint(row[m[2]]) == fmt.Sprint(params[m[3]]) })
	}
	for _, m := range excludePattern.FindAllStringSubmatch(query, -1) {
		rows = filterRows(rows, func(row Row) bool { return row[idField] != params[m[2]] })
	}
	if m := limitPattern.FindStringSubmatch(query); m != nil {
		var n int
		fmt.Sscan(m[1], &n)
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func filterRows(rows []Row, keep func(Row) bool) []Row {
	kept := rows[:0:0]
	for _, row := range rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

//byDistance sorts rows by their distance to the query point and annotates each with it.
func (b *memoryBackend) byDistance(collection string, rows []Row, lat, lon float64, attribute string) []Row {
	fields := b.geo[collection]
	var located []Row
	for _, row := range rows {
		pod := newPod(DocumentPod, collection)
		pod.data = row
		c, ok := coordinatesOf(pod, fields)
		if !ok {
			continue
		}
		row[attribute] = haversine(lat, lon, c.Latitude, c.Longitude)
		located = append(located, row)
	}
	sort.SliceStable(located, func(i, j int) bool {
		di, _ := toFloat(located[i][attribute])
		dj, _ := toFloat(located[j][attribute])
		return di < dj
	})
	return located
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

func (b *memoryBackend) traversal(query string, params map[string]any) ([]Row, error) {
	filter := EdgeFilter{}
	if m := directionPattern.FindStringSubmatch(query); m != nil {
		switch m[1] {
		case "INBOUND":
			filter.Direction = Inbound
		case "OUTBOUND":
			filter.Direction = Outbound
		}
	}
	switch labels := params["labels"].(type) {
	case []string:
		filter.Labels = labels
	case []any:
		for _, l := range labels {
			filter.Labels = append(filter.Labels, fmt.Sprint(l))
		}
	}
	for _, m := range propertyPattern.FindAllStringSubmatch(query, -1) {
		key, _ := params[m[1]].(string)
		filter.Properties = append(filter.Properties, PropertyFilter{Key: key, Value: params[m[3]], CompareOperator: m[2]})
	}
	start, _ := params["start"].(string)
	if strings.Contains(query, "RETURN DISTINCT v") {
		return b.NeighborVertices(context.Background(), b.graph, start, filter)
	}
	return b.ConnectedEdges(context.Background(), b.graph, start, filter)
}

var (
	resultLinePattern = regexp.MustCompile(`^\s*result\["(\w+)"\] = (.*);$`)
	resultRefPattern  = regexp.MustCompile(`result\["(\w+)"\]\._id`)
	callPattern       = regexp.MustCompile(`^(db\._collection\("(\w+)"\)|graph\["(\w+)"\])\.(\w+)\((.*)\)$`)
	existsPattern     = regexp.MustCompile(`^(.+)\.exists\(("\w+")\) \? .+ : null$`)
)

//Run executes a generated transaction body statement by statement. A failing statement
//restores every collection to its state before the run.
func (b *memoryBackend) Run(_ context.Context, script string, reads, writes []string, _ map[string]any) (any, error) {
	b.scripts = append(b.scripts, recordedScript{script, reads, writes})
	if b.runErr != nil {
		return nil, b.runErr
	}
	snapshot, order, seq := b.snapshot()
	results := map[string]any{}
	for _, line := range strings.Split(script, "\n") {
		m := resultLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fragment := resultRefPattern.ReplaceAllStringFunc(m[2], func(ref string) string {
			id := resultRefPattern.FindStringSubmatch(ref)[1]
			meta, _ := results[id].(map[string]any)
			return jsString(fmt.Sprint(meta[idField]))
		})
		value, err := b.statement(fragment)
		if err != nil {
			b.collections, b.order, b.seq = snapshot, order, seq
			return nil, errors.Wrapf(err, "statement %s", m[1])
		}
		results[m[1]] = value
	}
	return results, nil
}

func (b *memoryBackend) lastScript() recordedScript {
	if len(b.scripts) == 0 {
		return recordedScript{}
	}
	return b.scripts[len(b.scripts)-1]
}

func (b *memoryBackend) snapshot() (map[string]map[string]Row, map[string][]string, int) {
	collections := make(map[string]map[string]Row, len(b.collections))
	for name, docs := range b.collections {
		c := make(map[string]Row, len(docs))
		for k, v := range docs {
			c[k] = copyRow(v)
		}
		collections[name] = c
	}
	order := make(map[string][]string, len(b.order))
	for name, keys := range b.order {
		order[name] = append([]string(nil), keys...)
	}
	return collections, order, b.seq
}

func decodeArgs(args string) ([]any, error) {
	var values []any
	if err := json.Unmarshal([]byte("["+args+"]"), &values); err != nil {
		return nil, errors.Wrapf(err, "arguments %s", args)
	}
	return values, nil
}

func keyOf(handle any) string {
	s := fmt.Sprint(handle)
	return s[strings.Index(s, "/")+1:]
}

func (b *memoryBackend) statement(fragment string) (any, error) {
	if strings.HasPrefix(fragment, "(") && strings.HasSuffix(fragment, ")") {
		if i := strings.Index(fragment, ", graph["); i > 0 {
			if _, err := b.statement(fragment[1:i]); err != nil {
				return nil, err
			}
			return b.statement(fragment[i+2 : len(fragment)-1])
		}
	}
	if strings.HasPrefix(fragment, "db._query(") && strings.HasSuffix(fragment, ").toArray()") {
		args, err := decodeArgs(strings.TrimSuffix(strings.TrimPrefix(fragment, "db._query("), ").toArray()"))
		if err != nil {
			return nil, err
		}
		query, _ := args[0].(string)
		params, _ := args[1].(map[string]any)
		rows, err := b.evaluate(query, params)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(rows))
		for _, row := range rows {
			list = append(list, map[string]any(row))
		}
		return list, nil
	}
	if m := existsPattern.FindStringSubmatch(fragment); m != nil {
		target := callPattern.FindStringSubmatch(m[1] + ".exists(" + m[2] + ")")
		if target == nil {
			return nil, errors.Errorf("unknown target in %s", fragment)
		}
		var key string
		_ = json.Unmarshal([]byte(m[2]), &key)
		row, err := b.get(target[2]+target[3], key)
		if err != nil {
			return nil, nil
		}
		return map[string]any(row), nil
	}

	m := callPattern.FindStringSubmatch(fragment)
	if m == nil {
		return nil, errors.Errorf("unsupported statement %s", fragment)
	}
	collection := m[2] + m[3]
	args, err := decodeArgs(m[5])
	if err != nil {
		return nil, err
	}
	switch m[4] {
	case "save":
		var doc map[string]any
		switch len(args) {
		case 1:
			doc, _ = args[0].(map[string]any)
		case 3:
			doc, _ = args[2].(map[string]any)
			doc = copyRow(doc)
			doc[fromField] = args[0]
			doc[toField] = args[1]
		}
		if doc == nil {
			return nil, errors.Errorf("save without a document: %s", fragment)
		}
		delete(doc, revField)
		stored := b.put(collection, doc)
		return map[string]any{idField: stored[idField], keyField: stored[keyField], revField: stored[revField]}, nil
	case "replace":
		key := keyOf(args[0])
		if _, err := b.get(collection, key); err != nil {
			return nil, err
		}
		doc, _ := args[1].(map[string]any)
		doc = copyRow(doc)
		doc[keyField] = key
		stored := b.put(collection, doc)
		return map[string]any{idField: stored[idField], keyField: stored[keyField], revField: stored[revField]}, nil
	case "remove":
		if err := b.delete(collection, keyOf(args[0])); err != nil {
			return nil, err
		}
		return true, nil
	case "any":
		rows := b.all(collection)
		if len(rows) == 0 {
			return nil, nil
		}
		return map[string]any(rows[0]), nil
	}
	return nil, errors.Errorf("unsupported call %s", m[4])
}
