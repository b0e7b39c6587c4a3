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
	"sort"

	"github.com/pkg/errors"
)

//saver holds the per-kind persistence of pods, both immediate and as transaction script fragments.
type saver interface {
	collection(p *Pod) string
	store(ctx context.Context, p *Pod) (DocumentMeta, error)
	remove(ctx context.Context, p *Pod) error
	read(ctx context.Context, collection, key string) (Row, error)
	storeScript(ctx context.Context, p *Pod) (string, error)
	//replaceScript stores p again over the document its earlier buffered store created.
	replaceScript(ctx context.Context, p *Pod, idExpr string) (string, error)
	removeScript(p *Pod, idExpr string) string
	loadScript(collection, key string) string
	graphScoped() bool
}

func newSavers(pm *PodManager) map[PodKind]saver {
	return map[PodKind]saver{
		DocumentPod: &documentSaver{pm},
		VertexPod:   &vertexSaver{pm},
		EdgePod:     &edgeSaver{pm},
	}
}

func collectionTarget(collection string) string {
	return fmt.Sprintf("db._collection(%s)", jsString(collection))
}

func graphTarget(collection string) string {
	return fmt.Sprintf("graph[%s]", jsString(collection))
}

func loadScript(target, key string) string {
	k := jsString(key)
	return fmt.Sprintf("%s.exists(%s) ? %s.document(%s) : null", target, k, target, k)
}

func saveScript(target string, p *Pod) (string, error) {
	if p.isNew {
		doc, err := jsValue(p.ToTransactionTransport())
		if err != nil {
			return "", errors.Wrap(ErrStore, err.Error())
		}
		return fmt.Sprintf("%s.save(%s)", target, doc), nil
	}
	return replaceScript(target, p, jsString(p.id), nil)
}

//replaceScript builds a replace of idExpr. extra holds attributes whose values are script
//expressions rather than literals.
func replaceScript(target string, p *Pod, idExpr string, extra map[string]string) (string, error) {
	doc := p.ToTransactionTransport()
	for k := range extra {
		delete(doc, k)
	}
	body, err := jsValue(doc)
	if err != nil {
		return "", errors.Wrap(ErrStore, err.Error())
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := jsString(k) + ":" + extra[k]
		if body == "{}" {
			body = "{" + field + "}"
		} else {
			body = body[:len(body)-1] + "," + field + "}"
		}
	}
	return fmt.Sprintf("%s.replace(%s, %s)", target, idExpr, body), nil
}

type documentSaver struct {
	pm *PodManager
}

func (s *documentSaver) collection(p *Pod) string { return p.Collection() }
func (s *documentSaver) graphScoped() bool        { return false }

func (s *documentSaver) store(ctx context.Context, p *Pod) (DocumentMeta, error) {
	if p.isNew {
		return s.pm.documents.CreateDocument(ctx, s.collection(p), p.dataCopy())
	}
	return s.pm.documents.ReplaceDocument(ctx, s.collection(p), p.key, p.dataCopy())
}

func (s *documentSaver) remove(ctx context.Context, p *Pod) error {
	return s.pm.documents.RemoveDocument(ctx, s.collection(p), p.key)
}

func (s *documentSaver) read(ctx context.Context, collection, key string) (Row, error) {
	return s.pm.documents.ReadDocument(ctx, collection, key)
}

func (s *documentSaver) storeScript(_ context.Context, p *Pod) (string, error) {
	return saveScript(collectionTarget(s.collection(p)), p)
}

func (s *documentSaver) replaceScript(_ context.Context, p *Pod, idExpr string) (string, error) {
	return replaceScript(collectionTarget(s.collection(p)), p, idExpr, nil)
}

func (s *documentSaver) removeScript(p *Pod, idExpr string) string {
	return fmt.Sprintf("%s.remove(%s)", collectionTarget(s.collection(p)), idExpr)
}

func (s *documentSaver) loadScript(collection, key string) string {
	return loadScript(collectionTarget(collection), key)
}

type vertexSaver struct {
	pm *PodManager
}

func (s *vertexSaver) collection(*Pod) string { return s.pm.graph.VertexCollection }
func (s *vertexSaver) graphScoped() bool      { return true }

func (s *vertexSaver) store(ctx context.Context, p *Pod) (DocumentMeta, error) {
	if p.isNew {
		return s.pm.graphs.CreateVertex(ctx, *s.pm.graph, p.dataCopy())
	}
	return s.pm.graphs.ReplaceVertex(ctx, *s.pm.graph, p.key, p.dataCopy())
}

func (s *vertexSaver) remove(ctx context.Context, p *Pod) error {
	return s.pm.graphs.RemoveVertex(ctx, *s.pm.graph, p.key)
}

func (s *vertexSaver) read(ctx context.Context, _ string, key string) (Row, error) {
	return s.pm.graphs.ReadVertex(ctx, *s.pm.graph, key)
}

func (s *vertexSaver) storeScript(_ context.Context, p *Pod) (string, error) {
	return saveScript(graphTarget(s.collection(p)), p)
}

func (s *vertexSaver) replaceScript(_ context.Context, p *Pod, idExpr string) (string, error) {
	return replaceScript(graphTarget(s.collection(p)), p, idExpr, nil)
}

func (s *vertexSaver) removeScript(p *Pod, idExpr string) string {
	return fmt.Sprintf("%s.remove(%s)", graphTarget(s.collection(p)), idExpr)
}

func (s *vertexSaver) loadScript(_ string, key string) string {
	return loadScript(graphTarget(s.pm.graph.VertexCollection), key)
}

type edgeSaver struct {
	pm *PodManager
}

func (s *edgeSaver) collection(*Pod) string { return s.pm.graph.EdgeCollection }
func (s *edgeSaver) graphScoped() bool      { return true }

//endpointID returns the id of an edge end, storing a connected vertex with unsaved changes first.
func (s *edgeSaver) endpointID(ctx context.Context, e *endpoint, side string) (string, error) {
	if id := e.handle(); id != "" {
		return id, nil
	}
	if e != nil && e.pod != nil && e.pod.hasChanged && e.pod.model != nil {
		if _, err := s.pm.Store(ctx, e.pod.model); err != nil {
			return "", err
		}
		if id := e.handle(); id != "" {
			return id, nil
		}
	}
	return "", errors.Wrapf(ErrMissingEndpoint, "edge has no %s vertex", side)
}

//Edges cannot have their endpoints updated in place, existing ones are removed and recreated under the same key.
func (s *edgeSaver) store(ctx context.Context, p *Pod) (DocumentMeta, error) {
	from, err := s.endpointID(ctx, p.from, "from")
	if err != nil {
		return DocumentMeta{}, err
	}
	to, err := s.endpointID(ctx, p.to, "to")
	if err != nil {
		return DocumentMeta{}, err
	}
	doc := p.dataCopy()
	delete(doc, fromField)
	delete(doc, toField)
	delete(doc, labelField)
	if !p.isNew {
		if err := s.pm.graphs.RemoveEdge(ctx, *s.pm.graph, p.key); err != nil {
			return DocumentMeta{}, err
		}
		doc[keyField] = p.key
	}
	return s.pm.graphs.CreateEdge(ctx, *s.pm.graph, from, to, p.label, doc)
}

func (s *edgeSaver) remove(ctx context.Context, p *Pod) error {
	return s.pm.graphs.RemoveEdge(ctx, *s.pm.graph, p.key)
}

func (s *edgeSaver) read(ctx context.Context, _ string, key string) (Row, error) {
	return s.pm.graphs.ReadEdge(ctx, *s.pm.graph, key)
}

//endpointExpr is the script expression for an edge end. Vertices buffered for store earlier
//in the same transaction are referenced through their command result.
func (s *edgeSaver) endpointExpr(ctx context.Context, e *endpoint, side string) (string, error) {
	if id := e.handle(); id != "" {
		return jsString(id), nil
	}
	if e == nil || e.pod == nil {
		return "", errors.Wrapf(ErrMissingEndpoint, "edge has no %s vertex", side)
	}
	if expr, ok := s.pm.bufferedIDExpr(e.pod); ok {
		return expr, nil
	}
	if e.pod.hasChanged && e.pod.model != nil {
		if _, err := s.pm.Store(ctx, e.pod.model); err != nil {
			return "", err
		}
		if expr, ok := s.pm.bufferedIDExpr(e.pod); ok {
			return expr, nil
		}
	}
	return "", errors.Wrapf(ErrMissingEndpoint, "edge has no %s vertex", side)
}

func (s *edgeSaver) storeScript(ctx context.Context, p *Pod) (string, error) {
	from, err := s.endpointExpr(ctx, p.from, "from")
	if err != nil {
		return "", err
	}
	to, err := s.endpointExpr(ctx, p.to, "to")
	if err != nil {
		return "", err
	}
	doc := p.ToTransactionTransport()
	delete(doc, fromField)
	delete(doc, toField)
	if !p.isNew {
		doc[keyField] = p.key
	}
	body, err := jsValue(doc)
	if err != nil {
		return "", errors.Wrap(ErrStore, err.Error())
	}
	target := graphTarget(s.collection(p))
	save := fmt.Sprintf("%s.save(%s, %s, %s)", target, from, to, body)
	if p.isNew {
		return save, nil
	}
	return fmt.Sprintf("(%s.remove(%s), %s)", target, jsString(p.id), save), nil
}

//replaceScript carries the endpoints inside the document, replacing an edge keeps its key.
func (s *edgeSaver) replaceScript(ctx context.Context, p *Pod, idExpr string) (string, error) {
	from, err := s.endpointExpr(ctx, p.from, "from")
	if err != nil {
		return "", err
	}
	to, err := s.endpointExpr(ctx, p.to, "to")
	if err != nil {
		return "", err
	}
	return replaceScript(graphTarget(s.collection(p)), p, idExpr, map[string]string{fromField: from, toField: to})
}

func (s *edgeSaver) removeScript(p *Pod, idExpr string) string {
	return fmt.Sprintf("%s.remove(%s)", graphTarget(s.collection(p)), idExpr)
}

func (s *edgeSaver) loadScript(_ string, key string) string {
	return loadScript(graphTarget(s.pm.graph.EdgeCollection), key)
}
