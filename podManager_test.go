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
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

var testGraph = Graph{Name: "social", VertexCollection: "social_vertices", EdgeCollection: "social_edges"}

func newDocumentSession(t *testing.T) (*SessionImpl, *memoryBackend) {
	t.Helper()
	b := newMemoryBackend(Graph{})
	s, err := NewSession(NewConfig(), b.backend())
	if err != nil {
		t.Fatal(err)
	}
	return s, b
}

func newGraphSession(t *testing.T) (*SessionImpl, *memoryBackend) {
	t.Helper()
	b := newMemoryBackend(testGraph)
	cfg := NewConfig()
	cfg.Graph = Graph{Name: testGraph.Name}
	s, err := NewSession(cfg, b.backend())
	if err != nil {
		t.Fatal(err)
	}
	return s, b
}

func dispense(t *testing.T, s *SessionImpl, typ string, data Row, label ...string) Model {
	t.Helper()
	m, err := s.Dispense(typ, label...)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range data {
		if err := m.Pod().Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestStoreAndLoadDocument(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s, b := newDocumentSession(t)

	m := dispense(t, s, "people", Row{"name": "x"})
	g.Expect(m.Pod().IsNew()).To(BeTrue())

	key, err := s.Store(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(key).NotTo(BeEmpty())
	g.Expect(m.Pod().ID()).To(Equal("people/" + key))
	g.Expect(m.Pod().Rev()).NotTo(BeEmpty())
	g.Expect(m.Pod().IsNew()).To(BeFalse())
	g.Expect(m.Pod().HasChanged()).To(BeFalse())

	for _, id := range []string{key, "people/" + key} {
		loaded, err := s.Load(ctx, "people", id)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(loaded).NotTo(BeNil())
		name, err := loaded.Pod().Get("name")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(name).To(Equal("x"))
		g.Expect(loaded.Pod().IsNew()).To(BeFalse())
	}
	g.Expect(b.count("people")).To(Equal(1))
}

func TestStoreReplacesExistingDocument(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s, b := newDocumentSession(t)

	m := dispense(t, s, "people", Row{"name": "x"})
	key, err := s.Store(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	firstRev := m.Pod().Rev()

	g.Expect(m.Pod().Set("name", "y")).To(Succeed())
	again, err := s.Store(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again).To(Equal(key))
	g.Expect(m.Pod().Rev()).NotTo(Equal(firstRev))
	g.Expect(b.count("people")).To(Equal(1))

	row, err := b.ReadDocument(ctx, "people", key)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(row).To(HaveKeyWithValue("name", "y"))
}

func TestLoadMissingDocument(t *testing.T) {
	g := NewWithT(t)
	s, _ := newDocumentSession(t)
	m, err := s.Load(context.Background(), "people", "nobody")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m).To(BeNil())
}

func TestDeleteDocument(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s, b := newDocumentSession(t)

	m := dispense(t, s, "people", Row{"name": "x"})
	key, err := s.Store(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())

	deleted, err := s.Delete(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(deleted).To(BeTrue())
	g.Expect(m.Pod().IsDeleted()).To(BeTrue())
	g.Expect(b.count("people")).To(BeZero())

	loaded, err := s.Load(ctx, "people", key)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded).To(BeNil())

	_, err = s.Delete(ctx, m)
	g.Expect(err).To(MatchError(ErrDelete))
}

func TestDeleteNeverStored(t *testing.T) {
	g := NewWithT(t)
	s, _ := newDocumentSession(t)
	_, err := s.Delete(context.Background(), dispense(t, s, "people", nil))
	g.Expect(err).To(MatchError(ErrDelete))
}

func TestStoreFailureIsNormalized(t *testing.T) {
	g := NewWithT(t)
	s, b := newDocumentSession(t)
	b.storeErr = errors.New("disk full")

	_, err := s.Store(context.Background(), dispense(t, s, "people", nil))
	g.Expect(err).To(MatchError(ErrStore))
	var driverErr *DriverError
	g.Expect(errors.As(err, &driverErr)).To(BeTrue())
	g.Expect(driverErr.Message).To(Equal("disk full"))
}

func TestLifecycleHooks(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s, _ := newDocumentSession(t)
	s.RegisterModel("Person", func() any { return &Person{} })

	m, err := DispenseAs[*Person](s, "person")
	g.Expect(err).NotTo(HaveOccurred())
	other, err := DispenseAs[*Person](s, "person")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.hooks).To(Equal([]string{AfterDispense}))

	key, err := s.Store(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = s.Delete(ctx, m)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.hooks).To(Equal([]string{AfterDispense, BeforeStore, AfterStore, BeforeDelete, AfterDelete}))
	g.Expect(other.hooks).To(Equal([]string{AfterDispense}))

	_, err = s.Store(ctx, other)
	g.Expect(err).NotTo(HaveOccurred())
	loaded, err := LoadAs[*Person](ctx, s, "person", other.GetKey())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded.hooks).To(Equal([]string{AfterOpen}))

	missing, err := LoadAs[*Person](ctx, s, "person", key)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(missing).To(BeNil())
}

func TestForgetStopsHooks(t *testing.T) {
	g := NewWithT(t)
	s, _ := newDocumentSession(t)
	s.RegisterModel("Person", func() any { return &Person{} })

	m, err := DispenseAs[*Person](s, "person")
	g.Expect(err).NotTo(HaveOccurred())
	s.Pods().Forget(m)
	_, err = s.Store(context.Background(), m)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.hooks).To(Equal([]string{AfterDispense}))
}

func TestInvalidModelRegistration(t *testing.T) {
	g := NewWithT(t)
	s, _ := newDocumentSession(t)
	s.RegisterModel("Person", func() any { return &notAModel{} })
	_, err := s.Dispense("person")
	g.Expect(err).To(MatchError(ErrInvalidModel))
}

func TestDispenseTypesAndLabels(t *testing.T) {
	g := NewWithT(t)
	docs, _ := newDocumentSession(t)
	_, err := docs.Dispense("people", "friend")
	g.Expect(err).To(MatchError(ErrInvalidLabelUsage))
	g.Expect(docs.Pods().ValidateType("anything")).To(BeTrue())

	graph, _ := newGraphSession(t)
	_, err = graph.Dispense("people")
	g.Expect(err).To(MatchError(ErrInvalidType))
	_, err = graph.Dispense(VertexType, "friend")
	g.Expect(err).To(MatchError(ErrInvalidLabelUsage))
	g.Expect(graph.Pods().ValidateType("people")).To(BeFalse())

	edge, err := graph.Dispense(EdgeType, "friend")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(edge.Pod().Kind()).To(Equal(EdgePod))
	g.Expect(edge.Pod().Label()).To(Equal("friend"))
}

func TestStoreEdgeStoresDirtyEndpoints(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s, b := newGraphSession(t)

	ada := dispense(t, s, VertexType, Row{"name": "ada"})
	bob := dispense(t, s, VertexType, Row{"name": "bob"})
	knows := dispense(t, s, EdgeType, Row{"since": 2010}, "knows")
	knows.(*GenericModel).SetFrom(ada)
	knows.(*GenericModel).SetTo(bob)

	key, err := s.Store(ctx, knows)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ada.Pod().ID()).NotTo(BeEmpty())
	g.Expect(bob.Pod().ID()).NotTo(BeEmpty())
	g.Expect(b.count(testGraph.VertexCollection)).To(Equal(2))

	row, err := b.ReadEdge(ctx, testGraph, key)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(row).To(HaveKeyWithValue("_from", ada.Pod().ID()))
	g.Expect(row).To(HaveKeyWithValue("_to", bob.Pod().ID()))
	g.Expect(row).To(HaveKeyWithValue("$label", "knows"))
	g.Expect(row).To(HaveKeyWithValue("since", 2010))

	//updating recreates the edge under its key
	g.Expect(knows.Pod().Set("since", 2011)).To(Succeed())
	again, err := s.Store(ctx, knows)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again).To(Equal(key))
	g.Expect(b.count(testGraph.EdgeCollection)).To(Equal(1))

	loaded, err := s.Load(ctx, EdgeType, knows.Pod().ID())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded.Pod().Kind()).To(Equal(EdgePod))
	g.Expect(loaded.Pod().Label()).To(Equal("knows"))
	from, err := loaded.Pod().From(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(from.ID()).To(Equal(ada.Pod().ID()))
	name, _ := from.Get("name")
	g.Expect(name).To(Equal("ada"))
}

func TestStoreEdgeWithoutEndpoint(t *testing.T) {
	g := NewWithT(t)
	s, b := newGraphSession(t)
	edge := dispense(t, s, EdgeType, nil)
	_, err := s.Store(context.Background(), edge)
	g.Expect(err).To(MatchError(ErrMissingEndpoint))
	g.Expect(b.count(testGraph.EdgeCollection)).To(BeZero())
}

func TestConvertInfersKindFromID(t *testing.T) {
	g := NewWithT(t)
	s, _ := newGraphSession(t)
	models, err := s.Pods().ConvertToModels(VertexType, []RawDocument{
		{Row: Row{"_id": testGraph.VertexCollection + "/a"}},
		{Row: Row{"_id": testGraph.EdgeCollection + "/e", "_from": "x/a", "_to": "x/b"}},
		{Row: Row{"name": "no id"}},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(models).To(HaveLen(3))
	g.Expect(models[0].Pod().Kind()).To(Equal(VertexPod))
	g.Expect(models[1].Pod().Kind()).To(Equal(EdgePod))
	g.Expect(models[1].Pod().Type()).To(Equal(EdgeType))
	g.Expect(models[2].Pod().Kind()).To(Equal(VertexPod))

	index := models.Index()
	g.Expect(index).To(HaveKey(testGraph.VertexCollection + "/a"))
	g.Expect(index).To(HaveKey("2"))
}
