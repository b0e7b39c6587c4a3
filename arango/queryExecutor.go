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

package arango

import (
	"context"
	"encoding/json"
	"strings"

	driver "github.com/arangodb/go-driver"
	godm "github.com/disneystreaming/arango-go-odm"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (c *Client) ExecuteAll(ctx context.Context, query string, bindParams map[string]any) ([]godm.Row, error) {
	cursor, err := c.db.Query(ctx, query, bindParams)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	rows := []godm.Row{}
	for {
		var row godm.Row
		_, err := cursor.ReadDocument(ctx, &row)
		if driver.IsNoMoreDocuments(err) {
			break
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	c.logger.Debug("query executed", zap.String("query", query), zap.Int("rows", len(rows)))
	return rows, nil
}

func (c *Client) ExecuteOne(ctx context.Context, query string, bindParams map[string]any) (godm.Row, error) {
	rows, err := c.ExecuteAll(ctx, query, bindParams)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

//Explain returns the execution plan of query as plain json values.
func (c *Client) Explain(ctx context.Context, query string, bindParams map[string]any) (map[string]any, error) {
	plan, err := c.db.ExplainQuery(ctx, query, bindParams, nil)
	if err != nil {
		return nil, err
	}
	return toPlain(plan)
}

func toPlain(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	plain := map[string]any{}
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, errors.WithStack(err)
	}
	return plain, nil
}

func (c *Client) Run(ctx context.Context, script string, readCollections, writeCollections []string, params map[string]any) (any, error) {
	options := &driver.TransactionOptions{
		ReadCollections:  readCollections,
		WriteCollections: writeCollections,
	}
	if params != nil {
		options.Params = []interface{}{params}
	}
	c.logger.Debug("running transaction", zap.Strings("read", readCollections), zap.Strings("write", writeCollections))
	return c.db.Transaction(ctx, script, options)
}

func (c *Client) GeoIndexFields(ctx context.Context, collection string) ([]string, error) {
	col, err := c.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	indexes, err := col.Indexes(ctx)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if isGeoIndex(string(idx.Type())) {
			return idx.Fields(), nil
		}
	}
	return nil, nil
}

func isGeoIndex(indexType string) bool {
	return strings.HasPrefix(indexType, "geo")
}
