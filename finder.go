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
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultPlaceholder    = `doc`
	defaultIndexCacheSize = 128
	anchorParam           = `anchor_id`
)

//Criteria is a caller supplied AQL fragment with its bind parameters.
//Placeholder names the loop variable the fragment refers to, `doc` by default.
type Criteria struct {
	Filter      string
	Params      map[string]any
	Placeholder string
}

func (c Criteria) placeholder() string {
	if c.Placeholder == "" {
		return defaultPlaceholder
	}
	return c.Placeholder
}

//GeoReference is either a fixed point or a model whose geo indexed coordinates are used.
type GeoReference struct {
	point  *Coordinates
	anchor Model
}

func GeoPoint(latitude, longitude float64) GeoReference {
	return GeoReference{point: &Coordinates{Latitude: latitude, Longitude: longitude}}
}

//GeoAnchor uses model's coordinates as reference. The model itself is never part of the results.
func GeoAnchor(model Model) GeoReference {
	return GeoReference{anchor: model}
}

type geoInfo struct {
	coordinates Coordinates
	referenceID string
	limit       int
}

type Finder struct {
	pm         *PodManager
	documents  DocumentStore
	queries    QueryExecutor
	indexes    IndexInspector
	tm         *TransactionManager
	graph      *Graph
	normalizer ErrorNormalizer
	logger     *zap.Logger
	geoIndexes *lru.Cache[string, []string]
}

func NewFinder(pm *PodManager, documents DocumentStore, queries QueryExecutor, indexes IndexInspector, tm *TransactionManager, graph *Graph, normalizer ErrorNormalizer, logger *zap.Logger, indexCacheSize int) (*Finder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if indexCacheSize <= 0 {
		indexCacheSize = defaultIndexCacheSize
	}
	cache, err := lru.New[string, []string](indexCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	f := &Finder{
		pm:         pm,
		documents:  documents,
		queries:    queries,
		indexes:    indexes,
		tm:         tm,
		graph:      graph,
		normalizer: normalizer,
		logger:     logger,
		geoIndexes: cache,
	}
	tm.registerAction(ActionFind, func(cmd *Command) replayer {
		typ, _ := cmd.Aux["type"].(string)
		return f.manyReplay(typ, geoFromAux(cmd.Aux))
	})
	tm.registerAction(ActionFindOne, func(cmd *Command) replayer {
		typ, _ := cmd.Aux["type"].(string)
		return f.oneReplay(typ, geoFromAux(cmd.Aux))
	})
	tm.registerAction(ActionAny, func(cmd *Command) replayer {
		typ, _ := cmd.Aux["type"].(string)
		return f.oneReplay(typ, nil)
	})
	return f, nil
}

//GetCollectionName maps a type to its collection. In graph mode only vertex and edge are known.
func (f *Finder) GetCollectionName(typ string) (string, error) {
	if f.graph == nil {
		return typ, nil
	}
	switch typ {
	case VertexType:
		return f.graph.VertexCollection, nil
	case EdgeType:
		return f.graph.EdgeCollection, nil
	}
	return "", errors.Wrapf(ErrFinder, "unknown type %q for graph %q", typ, f.graph.Name)
}

func (f *Finder) Find(ctx context.Context, typ string, c Criteria) (Models, error) {
	return f.many(ctx, typ, "", filterClause(c.Filter), c, nil)
}

//FindAll places the criteria verbatim in the loop, so it may hold SORT and LIMIT as well.
func (f *Finder) FindAll(ctx context.Context, typ string, c Criteria) (Models, error) {
	return f.many(ctx, typ, "", c.Filter, c, nil)
}

func (f *Finder) FindOne(ctx context.Context, typ string, c Criteria) (Model, error) {
	return f.one(ctx, typ, "", joinClauses(filterClause(c.Filter), "LIMIT 1"), c, nil)
}

//Any returns an arbitrary model of the type, nil when the collection is empty.
func (f *Finder) Any(ctx context.Context, typ string) (Model, error) {
	collection, err := f.GetCollectionName(typ)
	if err != nil {
		return nil, err
	}
	if f.tm.Mode() == Buffered {
		script := fmt.Sprintf("%s.any()", collectionTarget(collection))
		return nil, f.buffer(script, ActionAny, typ, collection, nil, f.oneReplay(typ, nil))
	}
	row, err := f.documents.AnyDocument(ctx, collection)
	observeDriverCall("any", err)
	if err != nil {
		return nil, normalize(f.normalizer, ErrFinder, err)
	}
	if row == nil {
		return nil, nil
	}
	return f.pm.convert(typ, RawDocument{Row: row})
}

func (f *Finder) FindNear(ctx context.Context, typ string, ref GeoReference, c Criteria, limit int) (Models, error) {
	return f.near(ctx, typ, ref, filterClause(c.Filter), c, limit)
}

func (f *Finder) FindAllNear(ctx context.Context, typ string, ref GeoReference, c Criteria, limit int) (Models, error) {
	return f.near(ctx, typ, ref, c.Filter, c, limit)
}

func (f *Finder) FindOneNear(ctx context.Context, typ string, ref GeoReference, c Criteria) (Model, error) {
	models, err := f.near(ctx, typ, ref, filterClause(c.Filter), c, 1)
	return first(models, err)
}

func (f *Finder) FindWithin(ctx context.Context, typ string, ref GeoReference, radius float64, c Criteria) (Models, error) {
	return f.within(ctx, typ, ref, radius, filterClause(c.Filter), c, false)
}

func (f *Finder) FindAllWithin(ctx context.Context, typ string, ref GeoReference, radius float64, c Criteria) (Models, error) {
	return f.within(ctx, typ, ref, radius, c.Filter, c, false)
}

func (f *Finder) FindOneWithin(ctx context.Context, typ string, ref GeoReference, radius float64, c Criteria) (Model, error) {
	models, err := f.within(ctx, typ, ref, radius, filterClause(c.Filter), c, true)
	return first(models, err)
}

//Search runs a fulltext query on attribute, which needs a fulltext index.
func (f *Finder) Search(ctx context.Context, typ, attribute, query string, c Criteria) (Models, error) {
	return f.search(ctx, typ, attribute, query, filterClause(c.Filter), c)
}

func (f *Finder) SearchAll(ctx context.Context, typ, attribute, query string, c Criteria) (Models, error) {
	return f.search(ctx, typ, attribute, query, c.Filter, c)
}

func (f *Finder) SearchForOne(ctx context.Context, typ, attribute, query string, c Criteria) (Model, error) {
	models, err := f.search(ctx, typ, attribute, query, joinClauses(filterClause(c.Filter), "LIMIT 1"), c)
	return first(models, err)
}

//Query runs raw AQL and returns the rows unconverted.
func (f *Finder) Query(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	if f.tm.Mode() == Buffered {
		script, err := queryScript(query, params)
		if err != nil {
			return nil, err
		}
		_, err = f.tm.add(&Command{Script: script, Action: ActionQuery, replay: passthrough})
		return nil, err
	}
	rows, err := f.queries.ExecuteAll(ctx, query, params)
	observeDriverCall("query", err)
	if err != nil {
		return nil, normalize(f.normalizer, ErrFinder, err)
	}
	return rows, nil
}

//ForgetIndexes drops the cached index metadata of a collection.
func (f *Finder) ForgetIndexes(collection string) {
	f.geoIndexes.Remove(collection)
}

func (f *Finder) search(ctx context.Context, typ, attribute, query, body string, c Criteria) (Models, error) {
	c, attributeParam := bindParam(c, "attribute", attribute)
	c, queryParam := bindParam(c, "query", query)
	source := fmt.Sprintf("FULLTEXT(@@collection, @%s, @%s)", attributeParam, queryParam)
	return f.many(ctx, typ, source, body, c, nil)
}

func (f *Finder) near(ctx context.Context, typ string, ref GeoReference, body string, c Criteria, limit int) (Models, error) {
	geo, anchorID, err := f.resolveReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	var limitValue any
	if limit > 0 {
		geo.limit = limit
		//NEAR applies its limit before FILTER, one extra row makes room for the excluded anchor.
		if anchorID != "" {
			limit++
		}
		limitValue = limit
	}
	c, point := bindPoint(c, geo.coordinates)
	c, limitParam := bindParam(c, "limit", limitValue)
	c, distanceParam := bindParam(c, "distance", DistanceAttribute)
	body, c = f.excludeAnchor(body, c, anchorID)
	source := fmt.Sprintf("NEAR(@@collection, %s, @%s, @%s)", point, limitParam, distanceParam)
	return f.many(ctx, typ, source, body, c, geo)
}

func (f *Finder) within(ctx context.Context, typ string, ref GeoReference, radius float64, body string, c Criteria, onlyOne bool) (Models, error) {
	geo, anchorID, err := f.resolveReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	c, point := bindPoint(c, geo.coordinates)
	c, radiusParam := bindParam(c, "radius", radius)
	c, distanceParam := bindParam(c, "distance", DistanceAttribute)
	body, c = f.excludeAnchor(body, c, anchorID)
	if onlyOne {
		body = joinClauses(body, "LIMIT 1")
	}
	source := fmt.Sprintf("WITHIN(@@collection, %s, @%s, @%s)", point, radiusParam, distanceParam)
	return f.many(ctx, typ, source, body, c, geo)
}

func (f *Finder) excludeAnchor(body string, c Criteria, anchorID string) (string, Criteria) {
	if anchorID == "" {
		return body, c
	}
	c, name := bindParam(c, anchorParam, anchorID)
	return joinClauses(body, fmt.Sprintf("FILTER %s._id != @%s", c.placeholder(), name)), c
}

//bindParam adds value to the criteria params under a name the caller has not used.
func bindParam(c Criteria, probe string, value any) (Criteria, string) {
	name := bindingName(probe, c.Params)
	return withParams(c, map[string]any{name: value}), name
}

//bindPoint binds the coordinates and returns them as `@lat, @lon` arguments.
func bindPoint(c Criteria, point Coordinates) (Criteria, string) {
	c, lat := bindParam(c, "latitude", point.Latitude)
	c, lon := bindParam(c, "longitude", point.Longitude)
	return c, fmt.Sprintf("@%s, @%s", lat, lon)
}

//bindingName returns probe, suffixed with random characters until it is not one of params.
func bindingName(probe string, params map[string]any) string {
	name := probe
	for {
		if _, taken := params[name]; !taken {
			return name
		}
		name += strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	}
}

func (f *Finder) resolveReference(ctx context.Context, ref GeoReference) (*geoInfo, string, error) {
	if ref.point != nil {
		return &geoInfo{coordinates: *ref.point}, "", nil
	}
	if ref.anchor == nil || ref.anchor.Pod() == nil {
		return nil, "", errors.Wrap(ErrFinder, "geo reference needs coordinates or a model")
	}
	pod := ref.anchor.Pod()
	collection := pod.Collection()
	if f.graph != nil && pod.kind == VertexPod {
		collection = f.graph.VertexCollection
	}
	fields, err := f.geoIndexFields(ctx, collection)
	if err != nil {
		return nil, "", err
	}
	coordinates, ok := coordinatesOf(pod, fields)
	if !ok {
		return nil, "", errors.Wrapf(ErrFinder, "pod %q has no coordinates in %v", pod.id, fields)
	}
	return &geoInfo{coordinates: coordinates, referenceID: pod.id}, pod.id, nil
}

func (f *Finder) geoIndexFields(ctx context.Context, collection string) ([]string, error) {
	fields, cached := f.geoIndexes.Get(collection)
	if !cached {
		var err error
		if fields, err = f.indexes.GeoIndexFields(ctx, collection); err != nil {
			return nil, normalize(f.normalizer, ErrFinder, err)
		}
		f.geoIndexes.Add(collection, fields)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrFinder, "collection %q has no geo index", collection)
	}
	return fields, nil
}

//coordinatesOf reads a [latitude, longitude] pair from one field, or latitude and longitude from two.
func coordinatesOf(pod *Pod, fields []string) (Coordinates, bool) {
	switch len(fields) {
	case 1:
		pair, ok := lookup(pod.data, fields[0]).([]any)
		if !ok || len(pair) != 2 {
			return Coordinates{}, false
		}
		lat, latOK := toFloat(pair[0])
		lon, lonOK := toFloat(pair[1])
		return Coordinates{Latitude: lat, Longitude: lon}, latOK && lonOK
	case 2:
		lat, latOK := toFloat(lookup(pod.data, fields[0]))
		lon, lonOK := toFloat(lookup(pod.data, fields[1]))
		return Coordinates{Latitude: lat, Longitude: lon}, latOK && lonOK
	}
	return Coordinates{}, false
}

func lookup(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func (f *Finder) buildQuery(typ, source, body string, c Criteria) (string, map[string]any, string, error) {
	collection, err := f.GetCollectionName(typ)
	if err != nil {
		return "", nil, "", err
	}
	if source == "" {
		source = "@@collection"
	}
	ph := c.placeholder()
	query := joinClauses(fmt.Sprintf("FOR %s IN %s", ph, source), body, "RETURN "+ph)
	params := make(map[string]any, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params["@collection"] = collection
	return query, params, collection, nil
}

func (f *Finder) many(ctx context.Context, typ, source, body string, c Criteria, geo *geoInfo) (Models, error) {
	query, params, collection, err := f.buildQuery(typ, source, body, c)
	if err != nil {
		return nil, err
	}
	if f.tm.Mode() == Buffered {
		script, err := queryScript(query, params)
		if err != nil {
			return nil, err
		}
		return nil, f.buffer(script, ActionFind, typ, collection, geo, f.manyReplay(typ, geo))
	}
	f.logger.Debug("finder query", zap.String("query", query))
	rows, err := f.queries.ExecuteAll(ctx, query, params)
	observeDriverCall("find", err)
	if err != nil {
		return nil, normalize(f.normalizer, ErrFinder, err)
	}
	return f.toModels(typ, rows, geo)
}

func (f *Finder) one(ctx context.Context, typ, source, body string, c Criteria, geo *geoInfo) (Model, error) {
	query, params, collection, err := f.buildQuery(typ, source, body, c)
	if err != nil {
		return nil, err
	}
	if f.tm.Mode() == Buffered {
		script, err := queryScript(query, params)
		if err != nil {
			return nil, err
		}
		return nil, f.buffer(script, ActionFindOne, typ, collection, geo, f.oneReplay(typ, geo))
	}
	row, err := f.queries.ExecuteOne(ctx, query, params)
	observeDriverCall("find_one", err)
	if err != nil {
		return nil, normalize(f.normalizer, ErrFinder, err)
	}
	if row == nil {
		return nil, nil
	}
	return first(f.toModels(typ, []Row{row}, geo))
}

func (f *Finder) buffer(script string, action Action, typ, collection string, geo *geoInfo, r replayer) error {
	cmd := &Command{Script: script, Action: action, Aux: geoAux(typ, geo), replay: r}
	if _, err := f.tm.add(cmd); err != nil {
		return err
	}
	return f.tm.AddReadCollection(collection)
}

func (f *Finder) toModels(typ string, rows []Row, geo *geoInfo) (Models, error) {
	models, err := f.pm.convertRows(typ, rows)
	if err != nil {
		return nil, err
	}
	if geo == nil {
		return models, nil
	}
	for _, m := range models {
		if err := m.Pod().SetDistanceInfo(geo.coordinates.Latitude, geo.coordinates.Longitude, geo.referenceID); err != nil {
			return nil, err
		}
	}
	if geo.limit > 0 && len(models) > geo.limit {
		models = models[:geo.limit]
	}
	return models, nil
}

func (f *Finder) manyReplay(typ string, geo *geoInfo) replayer {
	return replayFunc(func(_ context.Context, raw any) (any, error) {
		rows, err := rowsOf(raw)
		if err != nil {
			return nil, err
		}
		return f.toModels(typ, rows, geo)
	})
}

func (f *Finder) oneReplay(typ string, geo *geoInfo) replayer {
	return replayFunc(func(_ context.Context, raw any) (any, error) {
		rows, err := rowsOf(raw)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return first(f.toModels(typ, rows[:1], geo))
	})
}

func geoAux(typ string, geo *geoInfo) map[string]any {
	aux := map[string]any{"type": typ}
	if geo != nil {
		aux["latitude"] = geo.coordinates.Latitude
		aux["longitude"] = geo.coordinates.Longitude
		aux["referenceId"] = geo.referenceID
		aux["limit"] = geo.limit
	}
	return aux
}

func geoFromAux(aux map[string]any) *geoInfo {
	lat, ok := toFloat(aux["latitude"])
	if !ok {
		return nil
	}
	lon, _ := toFloat(aux["longitude"])
	geo := &geoInfo{coordinates: Coordinates{Latitude: lat, Longitude: lon}}
	geo.referenceID, _ = aux["referenceId"].(string)
	if limit, ok := toFloat(aux["limit"]); ok {
		geo.limit = int(limit)
	}
	return geo
}

//rowsOf accepts a list of documents, a single document or null.
func rowsOf(raw any) ([]Row, error) {
	switch r := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []Row{r}, nil
	case []Row:
		return r, nil
	case []any:
		rows := make([]Row, 0, len(r))
		for _, item := range r {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, errors.Errorf("expected documents, got %T", item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, errors.Errorf("expected documents, got %T", raw)
}

func queryScript(query string, params map[string]any) (string, error) {
	bind, err := jsValue(params)
	if err != nil {
		return "", errors.Wrap(ErrFinder, err.Error())
	}
	return fmt.Sprintf("db._query(%s, %s).toArray()", jsString(query), bind), nil
}

func withParams(c Criteria, params map[string]any) Criteria {
	merged := make(map[string]any, len(c.Params)+len(params))
	for k, v := range c.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	c.Params = merged
	return c
}

func filterClause(filter string) string {
	if strings.TrimSpace(filter) == "" {
		return ""
	}
	return "FILTER " + filter
}

func joinClauses(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

func first(models Models, err error) (Model, error) {
	if err != nil || len(models) == 0 {
		return nil, err
	}
	return models[0], nil
}
