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

package neo4jgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

type transactionExecuter func(work neo4j.TransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)

type cypherExecuter struct {
	driver neo4j.Driver
}

func newCypherExecuter(driver neo4j.Driver) *cypherExecuter {
	return &cypherExecuter{driver}
}

//Executes a given cql statement using the provided params within the context of the provided `transactionExecuter`
func (c *cypherExecuter) execTransaction(te transactionExecuter, cql string, params map[string]any) ([]*neo4j.Record, error) {

	if records, err := te(func(tx neo4j.Transaction) (any, error) {

		if result, err := tx.Run(cql, params); err != nil {
			return nil, err
		} else {
			return result.Collect()
		}
	}); err != nil {
		return nil, err
	} else if resultAsRecords, isRecordSlice := records.([]*neo4j.Record); isRecordSlice {
		return resultAsRecords, nil
	} else {
		return nil, fmt.Errorf("records returned by query, but not in expected form")
	}
}

//Executes a given cql statement in a session of its own, opened with accessMode.
func (c *cypherExecuter) exec(ctx context.Context, accessMode neo4j.AccessMode, cql string, params map[string]any) ([]*neo4j.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session := c.driver.NewSession(neo4j.SessionConfig{
		AccessMode: accessMode,
	})
	defer session.Close()

	transactionMode := session.ReadTransaction
	if accessMode == neo4j.AccessModeWrite {
		transactionMode = session.WriteTransaction
	}
	return c.execTransaction(transactionMode, cql, params)
}

func (c *cypherExecuter) read(ctx context.Context, cql string, params map[string]any) ([]*neo4j.Record, error) {
	return c.exec(ctx, neo4j.AccessModeRead, cql, params)
}

func (c *cypherExecuter) write(ctx context.Context, cql string, params map[string]any) ([]*neo4j.Record, error) {
	return c.exec(ctx, neo4j.AccessModeWrite, cql, params)
}
