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

	"github.com/pkg/errors"
)

func as[M Model](model Model) (M, error) {
	var zero M
	if model == nil {
		return zero, nil
	}
	typed, ok := model.(M)
	if !ok {
		return zero, errors.Wrapf(ErrInvalidModel, "%T is not a %T", model, zero)
	}
	return typed, nil
}

//DispenseAs dispenses a model and asserts its concrete type.
func DispenseAs[M Model](session *SessionImpl, typ string, label ...string) (M, error) {
	model, err := session.Dispense(typ, label...)
	if err != nil {
		var zero M
		return zero, err
	}
	return as[M](model)
}

//LoadAs returns the zero M when nothing was found.
func LoadAs[M Model](ctx context.Context, session *SessionImpl, typ, id string) (M, error) {
	model, err := session.Load(ctx, typ, id)
	if err != nil {
		var zero M
		return zero, err
	}
	return as[M](model)
}

func FindAs[M Model](ctx context.Context, session *SessionImpl, typ string, criteria Criteria) ([]M, error) {
	models, err := session.Finder().Find(ctx, typ, criteria)
	if err != nil {
		return nil, err
	}
	return All[M](models)
}

func FindOneAs[M Model](ctx context.Context, session *SessionImpl, typ string, criteria Criteria) (M, error) {
	model, err := session.Finder().FindOne(ctx, typ, criteria)
	if err != nil {
		var zero M
		return zero, err
	}
	return as[M](model)
}

//All asserts every model of a result set, typically one returned by Commit.
func All[M Model](models Models) ([]M, error) {
	typed := make([]M, 0, len(models))
	for _, model := range models {
		m, err := as[M](model)
		if err != nil {
			return nil, err
		}
		typed = append(typed, m)
	}
	return typed, nil
}
