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

package floe

import (
	"errors"
	"fmt"

	"github.com/SnellerInc/floe/db"
	"github.com/SnellerInc/floe/plan"
)

var _ plan.Table = (*db.Table)(nil)

// Env resolves table locations onto open table handles.
type Env struct {
	// Resolvers are tried in order for every location;
	// a resolver that does not serve the location's scheme
	// returns db.ErrBadPattern and the next one is tried.
	Resolvers []db.Resolver

	// Conf is applied to every opened table.
	Conf db.Config

	// SplitSize overrides plan.DefaultSplitSize when set.
	SplitSize int64

	// Logf, if non-nil, receives diagnostics from the
	// environment, the tables it opens, and the planners
	// it builds.
	Logf func(f string, args ...interface{})

	recent []savedTable
}

type savedTable struct {
	location string
	tbl      *db.Table
}

// Environ creates an Env that resolves locations with the
// given resolvers.
func Environ(conf db.Config, resolvers ...db.Resolver) *Env {
	return &Env{Resolvers: resolvers, Conf: conf}
}

// Open resolves location and opens the table rooted there.
//
// Tables are memoized per location: a query that references
// the same table more than once decodes its metadata once and
// sees one consistent version throughout.
func (e *Env) Open(location string) (plan.Table, error) {
	for i := range e.recent {
		if e.recent[i].location == location {
			return e.recent[i].tbl, nil
		}
	}
	for _, r := range e.Resolvers {
		ifs, rest, err := r.Split(location)
		if errors.Is(err, db.ErrBadPattern) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("floe: resolving %q: %w", location, err)
		}
		tbl, err := db.Open(ifs, rest)
		if err != nil {
			return nil, fmt.Errorf("floe: opening %q: %w", location, err)
		}
		tbl.Logf = e.Logf
		tbl.Conf = e.Conf
		e.recent = append(e.recent, savedTable{location: location, tbl: tbl})
		return tbl, nil
	}
	return nil, fmt.Errorf("floe: no resolver for %q: %w", location, db.ErrBadPattern)
}

// Planner builds a planner wired to this environment's
// filter translator and logger.
func (e *Env) Planner() *plan.Planner {
	return &plan.Planner{
		SplitSize: e.SplitSize,
		Translate: Translate,
		Logf:      e.Logf,
	}
}
