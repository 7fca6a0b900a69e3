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

// Package floe plans distributed scans of Apache Iceberg tables.
//
// The top-level entry point is [Plan]: it resolves a table
// location through an [Env], opens the table's metadata, and
// plans a scan of one snapshot. The heavy lifting lives in the
// sub-packages: package iceberg models the table format,
// package db reads tables out of a filesystem, and package
// plan turns scan tasks into distributable splits.
package floe

import (
	"context"

	"github.com/SnellerInc/floe/plan"
)

// Plan opens the table at location through env and plans a
// scan of it. req selects the snapshot and carries filter
// conjuncts to push down; nil plans the current snapshot with
// no pushdown.
func Plan(ctx context.Context, env *Env, location string, req *plan.Request) (*plan.Result, error) {
	tbl, err := env.Open(location)
	if err != nil {
		return nil, err
	}
	return env.Planner().Plan(ctx, tbl, req)
}
