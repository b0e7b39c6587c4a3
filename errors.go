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
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrReservedField     = errors.New("reserved field")
	ErrInvalidID         = errors.New("invalid id")
	ErrImmutableID       = errors.New("id is immutable")
	ErrDuplicateDistance = errors.New("distance info already set")
	ErrPodAlreadyLoaded  = errors.New("model already holds a pod")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidLabelUsage = errors.New("labels can only be used with edges")
	ErrInvalidType       = errors.New("invalid type")
	ErrInvalidModel      = errors.New("invalid model")
	ErrMissingEndpoint   = errors.New("missing edge endpoint")
	ErrStore             = errors.New("store failed")
	ErrDelete            = errors.New("delete failed")
	ErrFinder            = errors.New("finder error")
	ErrGraph             = errors.New("graph error")
	ErrTransaction       = errors.New("transaction error")
	ErrUnknownAction     = errors.New("unknown command action")
	ErrInvalidPropertyOp = errors.New("invalid compare operator")
	ErrNotFound          = errors.New("document not found")
)

//DriverError is a collaborator failure normalized into a message and a code.
//It unwraps to its Kind so callers can use errors.Is(err, ErrStore) and friends.
type DriverError struct {
	Kind    error
	Message string
	Code    int
}

func (e *DriverError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%v: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *DriverError) Unwrap() error {
	return e.Kind
}

//Cause lets errors.Cause stop at the kind.
func (e *DriverError) Cause() error {
	return e.Kind
}

//ErrorNormalizer reduces any driver error to a uniform message and code.
type ErrorNormalizer interface {
	Normalize(err error) (message string, code int)
}

type defaultNormalizer struct{}

func (defaultNormalizer) Normalize(err error) (string, int) {
	if err == nil {
		return "", 0
	}
	return errors.Cause(err).Error(), 0
}

func normalize(n ErrorNormalizer, kind error, err error) error {
	if err == nil {
		return nil
	}
	if n == nil {
		n = defaultNormalizer{}
	}
	message, code := n.Normalize(err)
	return &DriverError{Kind: kind, Message: message, Code: code}
}
