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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//RawDocument is a driver row together with what the driver knows about its kind.
//Typed documents carry their kind; plain rows have it inferred from their id.
type RawDocument struct {
	Row   Row
	Kind  PodKind
	Typed bool
}

//Models is an ordered result set.
type Models []Model

//Index keys the models by id, or by position for models without one.
func (ms Models) Index() map[string]Model {
	index := make(map[string]Model, len(ms))
	for i, m := range ms {
		if id := m.Pod().ID(); id != "" {
			index[id] = m
		} else {
			index[strconv.Itoa(i)] = m
		}
	}
	return index
}

//PodManager creates, loads, stores and deletes pods and the models wrapping them.
type PodManager struct {
	documents  DocumentStore
	graphs     GraphStore
	graph      *Graph
	tm         *TransactionManager
	bus        *EventBus
	models     *ModelRegistry
	normalizer ErrorNormalizer
	logger     *zap.Logger
	savers     map[PodKind]saver
}

//NewPodManager works in graph mode when graph is not nil: types are then limited to vertex and edge.
func NewPodManager(documents DocumentStore, graphs GraphStore, graph *Graph, tm *TransactionManager, bus *EventBus, models *ModelRegistry, normalizer ErrorNormalizer, logger *zap.Logger) *PodManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	pm := &PodManager{
		documents:  documents,
		graphs:     graphs,
		graph:      graph,
		tm:         tm,
		bus:        bus,
		models:     models,
		normalizer: normalizer,
		logger:     logger,
	}
	pm.savers = newSavers(pm)
	tm.registerAction(ActionStore, func(cmd *Command) replayer { return pm.storeReplay(cmd.Object) })
	tm.registerAction(ActionDelete, func(cmd *Command) replayer { return pm.deleteReplay(cmd.Object) })
	tm.registerAction(ActionLoad, func(cmd *Command) replayer {
		typ, _ := cmd.Aux["type"].(string)
		return pm.loadReplay(typ)
	})
	return pm
}

func (pm *PodManager) graphMode() bool {
	return pm.graph != nil
}

func (pm *PodManager) ValidateType(typ string) bool {
	if !pm.graphMode() {
		return true
	}
	return typ == VertexType || typ == EdgeType
}

func (pm *PodManager) kindOf(typ string) (PodKind, error) {
	if !pm.graphMode() {
		return DocumentPod, nil
	}
	switch typ {
	case VertexType:
		return VertexPod, nil
	case EdgeType:
		return EdgePod, nil
	}
	return DocumentPod, errors.Wrapf(ErrInvalidType, "%q is neither %s nor %s", typ, VertexType, EdgeType)
}

//Dispense creates a new model of the given type. A label may only be given for edges.
func (pm *PodManager) Dispense(typ string, label ...string) (Model, error) {
	var edgeLabel string
	if len(label) > 0 {
		edgeLabel = label[0]
	}
	kind, err := pm.kindOf(typ)
	if err != nil {
		return nil, err
	}
	if edgeLabel != "" && kind != EdgePod {
		return nil, errors.Wrapf(ErrInvalidLabelUsage, "label %q on %q", edgeLabel, typ)
	}
	pod := newPod(kind, typ)
	pod.label = edgeLabel
	model, err := pm.wrap(pod)
	if err != nil {
		return nil, err
	}
	pm.bus.Notify(AfterDispense, pod)
	return model, nil
}

func (pm *PodManager) wrap(pod *Pod) (Model, error) {
	model, err := pm.models.newModel(pod.typ)
	if err != nil {
		return nil, err
	}
	if err := model.loadPod(pod); err != nil {
		return nil, err
	}
	pod.model = model
	pod.fetch = pm.fetchPod
	pm.bus.attachLifecycle(pod)
	return model, nil
}

//Forget stops lifecycle dispatch to the model's pod.
func (pm *PodManager) Forget(model Model) {
	pm.bus.DetachAllForListener(model.Pod())
}

func (pm *PodManager) fetchPod(ctx context.Context, id string) (*Pod, error) {
	typ := collectionOf(id)
	if pm.graphMode() {
		typ = VertexType
	}
	model, err := pm.Load(ctx, typ, id)
	if err != nil || model == nil {
		return nil, err
	}
	return model.Pod(), nil
}

func (pm *PodManager) saverFor(p *Pod) saver {
	return pm.savers[p.kind]
}

//Store persists the model and returns its key. Inside a transaction the store is buffered
//and the key is returned by Commit instead.
func (pm *PodManager) Store(ctx context.Context, model Model) (string, error) {
	pod := model.Pod()
	pm.bus.Notify(BeforeStore, pod)
	sv := pm.saverFor(pod)

	if pm.tm.Mode() == Buffered {
		var script string
		var err error
		if expr, buffered := pm.bufferedIDExpr(pod); buffered && pod.isNew {
			script, err = sv.replaceScript(ctx, pod, expr)
		} else {
			script, err = sv.storeScript(ctx, pod)
		}
		if err != nil {
			return "", err
		}
		if _, err := pm.tm.add(&Command{Script: script, Action: ActionStore, Object: pod, Graph: sv.graphScoped(), replay: pm.storeReplay(pod)}); err != nil {
			return "", err
		}
		return "", pm.tm.AddWriteCollection(sv.collection(pod))
	}

	meta, err := sv.store(ctx, pod)
	observeDriverCall("store", err)
	if err != nil {
		if isOwnError(err) {
			return "", err
		}
		pm.logger.Debug("store failed", zap.String("collection", sv.collection(pod)), zap.Error(err))
		return "", normalize(pm.normalizer, ErrStore, err)
	}
	return pm.finishStore(pod, meta.ID, meta.Rev)
}

func (pm *PodManager) finishStore(pod *Pod, id, rev string) (string, error) {
	if id != "" {
		if err := pod.SetID(id); err != nil {
			return "", err
		}
	}
	pod.setRev(rev)
	pod.markSaved()
	pm.bus.Notify(AfterStore, pod)
	return pod.key, nil
}

func (pm *PodManager) storeReplay(pod *Pod) replayer {
	return replayFunc(func(_ context.Context, raw any) (any, error) {
		if pod == nil {
			return nil, errors.Wrap(ErrStore, "store command without a pod")
		}
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Wrapf(ErrStore, "unexpected store result %T", raw)
		}
		id, _ := meta[idField].(string)
		rev, _ := meta[revField].(string)
		return pm.finishStore(pod, id, rev)
	})
}

//bufferedIDExpr references the id a pod will get from its store command in the current transaction.
func (pm *PodManager) bufferedIDExpr(pod *Pod) (string, bool) {
	id, _, found := pm.tm.SearchCommandsByActionAndObject(ActionStore, pod)
	if !found {
		return "", false
	}
	return fmt.Sprintf("result[%s]._id", jsString(id)), true
}

//Delete removes the model's document. Inside a transaction it returns false and the
//outcome is reported by Commit.
func (pm *PodManager) Delete(ctx context.Context, model Model) (bool, error) {
	pod := model.Pod()
	pm.bus.Notify(BeforeDelete, pod)
	sv := pm.saverFor(pod)

	if pm.tm.Mode() == Buffered {
		idExpr := jsString(pod.id)
		if pod.id == "" {
			expr, ok := pm.bufferedIDExpr(pod)
			if !ok {
				return false, errors.Wrap(ErrDelete, "pod was never stored")
			}
			idExpr = expr
		}
		cmd := &Command{Script: sv.removeScript(pod, idExpr), Action: ActionDelete, Object: pod, Graph: sv.graphScoped(), replay: pm.deleteReplay(pod)}
		if _, err := pm.tm.add(cmd); err != nil {
			return false, err
		}
		//removing a vertex through the graph also removes its edges
		if pod.kind == VertexPod {
			if err := pm.tm.AddWriteCollection(pm.graph.EdgeCollection); err != nil {
				return false, err
			}
		}
		return false, pm.tm.AddWriteCollection(sv.collection(pod))
	}

	if pod.key == "" {
		return false, errors.Wrap(ErrDelete, "pod was never stored")
	}
	err := sv.remove(ctx, pod)
	observeDriverCall("delete", err)
	if err != nil {
		pm.logger.Debug("delete failed", zap.String("id", pod.id), zap.Error(err))
		return false, normalize(pm.normalizer, ErrDelete, err)
	}
	pm.finishDelete(pod)
	return true, nil
}

func (pm *PodManager) finishDelete(pod *Pod) {
	pod.isDeleted = true
	pm.bus.Notify(AfterDelete, pod)
}

func (pm *PodManager) deleteReplay(pod *Pod) replayer {
	return replayFunc(func(context.Context, any) (any, error) {
		if pod == nil {
			return nil, errors.Wrap(ErrDelete, "delete command without a pod")
		}
		pm.finishDelete(pod)
		return true, nil
	})
}

//Load fetches a document by key or id. A missing document, or any driver failure, yields nil.
func (pm *PodManager) Load(ctx context.Context, typ, id string) (Model, error) {
	kind, err := pm.kindOf(typ)
	if err != nil {
		return nil, err
	}
	sv := pm.savers[kind]
	collection := typ
	if pm.graphMode() {
		collection = sv.collection(nil)
	}
	key := id
	if i := strings.Index(id, "/"); i >= 0 {
		key = id[i+1:]
	}

	if pm.tm.Mode() == Buffered {
		cmd := &Command{Script: sv.loadScript(collection, key), Action: ActionLoad, Graph: sv.graphScoped(), Aux: map[string]any{"type": typ}, replay: pm.loadReplay(typ)}
		if _, err := pm.tm.add(cmd); err != nil {
			return nil, err
		}
		return nil, pm.tm.AddReadCollection(collection)
	}

	row, err := sv.read(ctx, collection, key)
	observeDriverCall("load", err)
	if err != nil {
		pm.logger.Debug("load yields nothing", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	if row == nil {
		return nil, nil
	}
	return pm.convert(typ, RawDocument{Row: row, Kind: kind, Typed: pm.graphMode()})
}

func (pm *PodManager) loadReplay(typ string) replayer {
	return replayFunc(func(_ context.Context, raw any) (any, error) {
		row, ok := raw.(map[string]any)
		if !ok || row == nil {
			return nil, nil
		}
		return pm.convert(typ, RawDocument{Row: row})
	})
}

//ConvertToModels hydrates models from driver rows, in order.
func (pm *PodManager) ConvertToModels(typ string, docs []RawDocument) (Models, error) {
	models := make(Models, 0, len(docs))
	for _, doc := range docs {
		model, err := pm.convert(typ, doc)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	return models, nil
}

func (pm *PodManager) convertRows(typ string, rows []Row) (Models, error) {
	docs := make([]RawDocument, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, RawDocument{Row: row})
	}
	return pm.ConvertToModels(typ, docs)
}

func (pm *PodManager) convert(typ string, doc RawDocument) (Model, error) {
	kind, podType := pm.inferKind(typ, doc)
	pod := newPod(kind, podType)
	if err := pod.LoadFrom(doc.Row); err != nil {
		return nil, err
	}
	model, err := pm.wrap(pod)
	if err != nil {
		return nil, err
	}
	pm.bus.Notify(AfterOpen, pod)
	return model, nil
}

func (pm *PodManager) inferKind(typ string, doc RawDocument) (PodKind, string) {
	id, _ := doc.Row[idField].(string)
	if !pm.graphMode() {
		if collection := collectionOf(id); collection != "" {
			return DocumentPod, collection
		}
		return DocumentPod, typ
	}
	kind := doc.Kind
	if !doc.Typed {
		kind = VertexPod
		if collectionOf(id) == pm.graph.EdgeCollection {
			kind = EdgePod
		}
	}
	return kind, kind.String()
}

func collectionOf(id string) string {
	if i := strings.Index(id, "/"); i > 0 {
		return id[:i]
	}
	return ""
}

func isOwnError(err error) bool {
	var de *DriverError
	return errors.As(err, &de) || errors.Is(err, ErrMissingEndpoint) || errors.Is(err, ErrStore)
}
