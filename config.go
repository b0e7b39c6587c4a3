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
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	defaultEndpoint = "http://127.0.0.1:8529"
	defaultDatabase = "_system"
)

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

//Config describes the server a session talks to. Setting graph.name switches the
//session to graph mode.
type Config struct {
	Endpoints      []string    `toml:"endpoints"`
	Database       string      `toml:"database"`
	Username       string      `toml:"username"`
	Password       string      `toml:"password"`
	Graph          Graph       `toml:"graph"`
	IndexCacheSize int         `toml:"index-cache-size"`
	Neo4j          Neo4jConfig `toml:"neo4j"`
}

func NewConfig() *Config {
	return &Config{}
}

//LoadConfig decodes a toml file, fills in defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("config %s contains unknown keys %v", path, undecoded)
	}
	cfg.Adjust()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Adjust() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []string{defaultEndpoint}
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.IndexCacheSize <= 0 {
		c.IndexCacheSize = defaultIndexCacheSize
	}
	if c.Graph.Name != "" {
		if c.Graph.VertexCollection == "" {
			c.Graph.VertexCollection = c.Graph.Name + "_vertices"
		}
		if c.Graph.EdgeCollection == "" {
			c.Graph.EdgeCollection = c.Graph.Name + "_edges"
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}
	if c.Graph.Name == "" && (c.Graph.VertexCollection != "" || c.Graph.EdgeCollection != "") {
		return errors.New("graph collections are set but graph.name is empty")
	}
	if c.Graph.Name != "" && c.Graph.VertexCollection == c.Graph.EdgeCollection {
		return errors.Errorf("graph %q uses %q for both vertices and edges", c.Graph.Name, c.Graph.VertexCollection)
	}
	return nil
}

func (c *Config) GraphMode() bool {
	return c.Graph.Name != ""
}
