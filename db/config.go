// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package db

import (
	"errors"
	"fmt"
	"io/fs"

	"sigs.k8s.io/yaml"
)

const defaultFanout = 8

// Config adjusts how tables are scanned.
// The zero value uses the defaults.
type Config struct {
	// Chunk is the preferred byte-range size for scan
	// tasks, used when the scan caller does not pick one.
	// Zero leaves files untiled.
	Chunk int64 `json:"chunk,omitempty"`
	// Fanout bounds the number of manifests fetched
	// concurrently during one scan. Zero means a small
	// default.
	Fanout int `json:"fanout,omitempty"`
}

func (c Config) fanout() int {
	if c.Fanout <= 0 {
		return defaultFanout
	}
	return c.Fanout
}

// OpenConfig reads a scan configuration from a YAML or JSON
// file inside fsys. A missing file yields the zero Config.
func OpenConfig(fsys fs.FS, p string) (Config, error) {
	var c Config
	buf, err := fs.ReadFile(fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("db.OpenConfig: %w", err)
	}
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return c, fmt.Errorf("db.OpenConfig: %s: %w", p, err)
	}
	if c.Chunk < 0 {
		return c, fmt.Errorf("db.OpenConfig: %s: negative chunk %d", p, c.Chunk)
	}
	if c.Fanout < 0 {
		return c, fmt.Errorf("db.OpenConfig: %s: negative fanout %d", p, c.Fanout)
	}
	return c, nil
}
