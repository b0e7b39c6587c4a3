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
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

//Model is the capability set every domain model wrapping a pod must provide.
//Implementations get it by embedding BaseModel.
type Model interface {
	Pod() *Pod
	loadPod(pod *Pod) error

	AfterDispense()
	AfterOpen()
	BeforeStore()
	AfterStore()
	BeforeDelete()
	AfterDelete()
}

//BaseModel links a model to its pod and provides no-op lifecycle hooks.
//
//	type Person struct {
//	    godm.BaseModel
//	}
type BaseModel struct {
	pod *Pod
}

func (m *BaseModel) Pod() *Pod {
	return m.pod
}

func (m *BaseModel) loadPod(pod *Pod) error {
	if m.pod != nil {
		return errors.Wrapf(ErrPodAlreadyLoaded, "model already wraps pod %q", m.pod.id)
	}
	m.pod = pod
	return nil
}

func (m *BaseModel) AfterDispense() {}
func (m *BaseModel) AfterOpen()     {}
func (m *BaseModel) BeforeStore()   {}
func (m *BaseModel) AfterStore()    {}
func (m *BaseModel) BeforeDelete()  {}
func (m *BaseModel) AfterDelete()   {}

func (m *BaseModel) Get(key string) (any, error)               { return m.pod.Get(key) }
func (m *BaseModel) Set(key string, value any) error           { return m.pod.Set(key, value) }
func (m *BaseModel) Remove(key string) error                   { return m.pod.Remove(key) }
func (m *BaseModel) GetID() string                             { return m.pod.ID() }
func (m *BaseModel) GetKey() string                            { return m.pod.Key() }
func (m *BaseModel) GetRev() string                            { return m.pod.Rev() }
func (m *BaseModel) GetDistance() (float64, bool)              { return m.pod.Distance() }
func (m *BaseModel) GetReferenceID() string                    { return m.pod.ReferenceID() }
func (m *BaseModel) GetLabel() string                          { return m.pod.Label() }
func (m *BaseModel) GetFrom(ctx context.Context) (*Pod, error) { return m.pod.From(ctx) }
func (m *BaseModel) GetTo(ctx context.Context) (*Pod, error)   { return m.pod.To(ctx) }

func (m *BaseModel) SetFrom(vertex Model) { m.pod.SetFrom(vertex.Pod()) }
func (m *BaseModel) SetTo(vertex Model)   { m.pod.SetTo(vertex.Pod()) }

//GenericModel is dispensed for types without a registered model.
type GenericModel struct {
	BaseModel
}

//ModelFormatter maps a pod type to the name a model constructor was registered under.
type ModelFormatter interface {
	FormatModel(typ string) string
}

//ModelFormatterFunc adapts a function into a ModelFormatter.
type ModelFormatterFunc func(typ string) string

func (f ModelFormatterFunc) FormatModel(typ string) string {
	return f(typ)
}

//TitleFormatter turns `user_account` into `UserAccount`.
var TitleFormatter ModelFormatter = ModelFormatterFunc(func(typ string) string {
	var b strings.Builder
	upper := true
	for _, r := range typ {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
})

//ModelRegistry resolves a pod type into a fresh model instance.
type ModelRegistry struct {
	formatter    ModelFormatter
	constructors map[string]func() any
}

func NewModelRegistry(formatter ModelFormatter) *ModelRegistry {
	if formatter == nil {
		formatter = TitleFormatter
	}
	return &ModelRegistry{formatter: formatter, constructors: map[string]func() any{}}
}

//Register binds a model name to a constructor. The constructor must return a Model.
func (r *ModelRegistry) Register(name string, constructor func() any) {
	r.constructors[name] = constructor
}

func (r *ModelRegistry) newModel(typ string) (Model, error) {
	constructor, ok := r.constructors[r.formatter.FormatModel(typ)]
	if !ok {
		return &GenericModel{}, nil
	}
	value := constructor()
	model, isModel := value.(Model)
	if !isModel {
		return nil, errors.Wrapf(ErrInvalidModel, "%T registered for %q does not embed godm.BaseModel", value, typ)
	}
	return model, nil
}
