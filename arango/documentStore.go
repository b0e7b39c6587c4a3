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

	godm "github.com/disneystreaming/arango-go-odm"
	"go.uber.org/zap"
)

const anyQuery = `FOR d IN @@collection SORT RAND() LIMIT 1 RETURN d`

func (c *Client) CreateDocument(ctx context.Context, collection string, doc godm.Row) (godm.DocumentMeta, error) {
	col, err := c.collection(ctx, collection)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	meta, err := col.CreateDocument(ctx, doc)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	c.logger.Debug("document created", zap.String("id", string(meta.ID)))
	return metaOf(meta), nil
}

func (c *Client) ReplaceDocument(ctx context.Context, collection, key string, doc godm.Row) (godm.DocumentMeta, error) {
	col, err := c.collection(ctx, collection)
	if err != nil {
		return godm.DocumentMeta{}, err
	}
	meta, err := col.ReplaceDocument(ctx, key, doc)
	if err != nil {
		return godm.DocumentMeta{}, notFound(err, collection, key)
	}
	return metaOf(meta), nil
}

func (c *Client) RemoveDocument(ctx context.Context, collection, key string) error {
	col, err := c.collection(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := col.RemoveDocument(ctx, key); err != nil {
		return notFound(err, collection, key)
	}
	return nil
}

func (c *Client) ReadDocument(ctx context.Context, collection, key string) (godm.Row, error) {
	col, err := c.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	var row godm.Row
	if _, err := col.ReadDocument(ctx, key, &row); err != nil {
		return nil, notFound(err, collection, key)
	}
	return row, nil
}

func (c *Client) AnyDocument(ctx context.Context, collection string) (godm.Row, error) {
	return c.ExecuteOne(ctx, anyQuery, map[string]any{"@collection": collection})
}
