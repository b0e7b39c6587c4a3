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
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type PodKind int

const (
	DocumentPod PodKind = iota
	VertexPod
	EdgePod
)

func (k PodKind) String() string {
	switch k {
	case VertexPod:
		return VertexType
	case EdgePod:
		return EdgeType
	default:
		return "document"
	}
}

const (
	VertexType = `vertex`
	EdgeType   = `edge`

	idField    = `_id`
	keyField   = `_key`
	revField   = `_rev`
	fromField  = `_from`
	toField    = `_to`
	labelField = `$label`

	//DistanceAttribute is written by geo queries into every result and moved into the pod's distance.
	DistanceAttribute = `_godm_distance`
)

var (
	idPattern      = regexp.MustCompile(`^\w+/\w+$`)
	reservedFields = map[string]bool{idField: true, keyField: true, revField: true}
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type resolver func(ctx context.Context, id string) (*Pod, error)

//endpoint is an edge end: unresolved while only the id is known, resolved once pod is set.
type endpoint struct {
	id  string
	pod *Pod
}

func (e *endpoint) handle() string {
	if e == nil {
		return ""
	}
	if e.pod != nil {
		return e.pod.id
	}
	return e.id
}

func (e *endpoint) resolve(ctx context.Context, fetch resolver) (*Pod, error) {
	if e == nil {
		return nil, nil
	}
	if e.pod != nil {
		return e.pod, nil
	}
	if e.id == "" || fetch == nil {
		return nil, nil
	}
	pod, err := fetch(ctx, e.id)
	if err != nil {
		return nil, err
	}
	e.pod = pod
	return pod, nil
}

//Pod is the mutable record behind every model: identity, data and lifecycle flags.
type Pod struct {
	kind       PodKind
	typ        string
	isNew      bool
	hasChanged bool
	isDeleted  bool
	data       map[string]any
	id         string
	key        string
	rev        string

	label string
	from  *endpoint
	to    *endpoint
	fetch resolver

	distance             *float64
	referenceCoordinates *Coordinates
	referencePodID       string

	model Model
}

func newPod(kind PodKind, typ string) *Pod {
	p := &Pod{kind: kind, typ: typ, isNew: true, hasChanged: true, data: map[string]any{}}
	if kind == EdgePod {
		p.from, p.to = &endpoint{}, &endpoint{}
	}
	return p
}

func (p *Pod) Kind() PodKind       { return p.kind }
func (p *Pod) Type() string        { return p.typ }
func (p *Pod) IsNew() bool         { return p.isNew }
func (p *Pod) HasChanged() bool    { return p.hasChanged }
func (p *Pod) IsDeleted() bool     { return p.isDeleted }
func (p *Pod) ID() string          { return p.id }
func (p *Pod) Key() string         { return p.key }
func (p *Pod) Rev() string         { return p.rev }
func (p *Pod) Label() string       { return p.label }
func (p *Pod) Model() Model        { return p.model }
func (p *Pod) ReferenceID() string { return p.referencePodID }

//Collection is the collection segment of the id, or the pod type when unsaved.
func (p *Pod) Collection() string {
	if i := strings.Index(p.id, "/"); i > 0 {
		return p.id[:i]
	}
	return p.typ
}

func (p *Pod) Get(key string) (any, error) {
	if reservedFields[key] {
		return nil, errors.Wrapf(ErrReservedField, "use the dedicated getter for %q", key)
	}
	return p.data[key], nil
}

func (p *Pod) Set(key string, value any) error {
	if reservedFields[key] {
		return errors.Wrapf(ErrReservedField, "cannot set %q", key)
	}
	p.data[key] = value
	p.hasChanged = true
	return nil
}

func (p *Pod) Remove(key string) error {
	if reservedFields[key] {
		return errors.Wrapf(ErrReservedField, "cannot remove %q", key)
	}
	delete(p.data, key)
	p.hasChanged = true
	return nil
}

//Keys lists the data attributes in sorted order.
func (p *Pod) Keys() []string {
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

//SetID assigns the `collection/key` id once. Setting the same id again is a no-op.
func (p *Pod) SetID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	if p.id != "" {
		if p.id != id {
			return errors.Wrapf(ErrImmutableID, "pod %q cannot become %q", p.id, id)
		}
		return nil
	}
	p.id = id
	p.key = id[strings.Index(id, "/")+1:]
	return nil
}

func (p *Pod) setRev(rev string) {
	p.rev = rev
}

func (p *Pod) markSaved() {
	p.isNew = false
	p.hasChanged = false
}

//SetDistanceInfo moves the synthetic distance attribute out of data. It may only happen once.
func (p *Pod) SetDistanceInfo(latitude, longitude float64, referenceID string) error {
	if p.distance != nil || p.referenceCoordinates != nil || p.referencePodID != "" {
		return errors.Wrapf(ErrDuplicateDistance, "pod %q", p.id)
	}
	if raw, ok := p.data[DistanceAttribute]; ok {
		if distance, ok := toFloat(raw); ok {
			p.distance = &distance
		}
		delete(p.data, DistanceAttribute)
	}
	p.referenceCoordinates = &Coordinates{Latitude: latitude, Longitude: longitude}
	p.referencePodID = referenceID
	return nil
}

//Distance returns the distance to the reference point of the geo query that produced this pod.
func (p *Pod) Distance() (float64, bool) {
	if p.distance == nil {
		return 0, false
	}
	return *p.distance, true
}

func (p *Pod) ReferenceCoordinates() (Coordinates, bool) {
	if p.referenceCoordinates == nil {
		return Coordinates{}, false
	}
	return *p.referenceCoordinates, true
}

func (p *Pod) SetLabel(label string) {
	p.label = label
	p.hasChanged = true
}

func (p *Pod) SetFrom(vertex *Pod) {
	p.from = &endpoint{id: vertex.id, pod: vertex}
	p.hasChanged = true
}

func (p *Pod) SetTo(vertex *Pod) {
	p.to = &endpoint{id: vertex.id, pod: vertex}
	p.hasChanged = true
}

func (p *Pod) FromID() string { return p.from.handle() }
func (p *Pod) ToID() string   { return p.to.handle() }

//From resolves the start vertex, fetching it when only its id is known.
func (p *Pod) From(ctx context.Context) (*Pod, error) {
	return p.from.resolve(ctx, p.fetch)
}

func (p *Pod) To(ctx context.Context) (*Pod, error) {
	return p.to.resolve(ctx, p.fetch)
}

func (p *Pod) dataCopy() Row {
	doc := make(Row, len(p.data)+6)
	for k, v := range p.data {
		doc[k] = v
	}
	if p.kind == EdgePod {
		if from := p.FromID(); from != "" {
			doc[fromField] = from
		}
		if to := p.ToID(); to != "" {
			doc[toField] = to
		}
		if p.label != "" {
			doc[labelField] = p.label
		}
	}
	return doc
}

func (p *Pod) ToTransport() Row {
	doc := p.dataCopy()
	if p.id != "" {
		doc[idField] = p.id
		doc[keyField] = p.key
	}
	if p.rev != "" {
		doc[revField] = p.rev
	}
	return doc
}

//ToTransactionTransport leaves out _id and _key, they cannot change inside a transaction body.
func (p *Pod) ToTransactionTransport() Row {
	doc := p.dataCopy()
	if p.rev != "" {
		doc[revField] = p.rev
	}
	return doc
}

//LoadFrom hydrates the pod from a raw row and marks it saved.
func (p *Pod) LoadFrom(row Row) error {
	data := make(map[string]any, len(row))
	for k, v := range row {
		switch k {
		case idField, keyField, revField:
			continue
		case fromField, toField, labelField:
			if p.kind == EdgePod {
				s, _ := v.(string)
				switch k {
				case fromField:
					p.from = &endpoint{id: s}
				case toField:
					p.to = &endpoint{id: s}
				default:
					p.label = s
				}
				continue
			}
		}
		data[k] = v
	}
	if id, ok := row[idField].(string); ok && id != "" {
		if err := p.SetID(id); err != nil {
			return err
		}
	}
	if rev, ok := row[revField].(string); ok {
		p.rev = rev
	}
	p.data = data
	p.markSaved()
	return nil
}

//Clone copies data and endpoints into a new unsaved pod.
func (p *Pod) Clone() *Pod {
	c := newPod(p.kind, p.typ)
	for k, v := range p.data {
		c.data[k] = v
	}
	delete(c.data, DistanceAttribute)
	c.label = p.label
	if p.kind == EdgePod {
		c.from = &endpoint{id: p.from.id, pod: p.from.pod}
		c.to = &endpoint{id: p.to.id, pod: p.to.pod}
	}
	c.fetch = p.fetch
	return c
}

//OnEvent routes lifecycle events addressed to this pod to the owning model.
func (p *Pod) OnEvent(e *Event) {
	if e.Subject != p || p.model == nil {
		return
	}
	switch e.Name {
	case AfterDispense:
		p.model.AfterDispense()
	case AfterOpen:
		p.model.AfterOpen()
	case BeforeStore:
		p.model.BeforeStore()
	case AfterStore:
		p.model.AfterStore()
	case BeforeDelete:
		p.model.BeforeDelete()
	case AfterDelete:
		p.model.AfterDelete()
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
