// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package plan

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Assign distributes splits into n groups deterministically
// based on each split's path and start offset, so that
// repeated plans over the same table state send each byte
// range to the same worker and downstream caches stay warm.
//
// Splits keep their relative order within each group. Groups
// may be empty; the sum of the group sizes is len(splits).
func Assign(splits []Split, n int) [][]Split {
	const (
		k0    = 0x5d1ec810febed702
		k1    = 0x40fd7fee17262f71
		clamp = ^uint64(0)
	)
	if n <= 0 {
		n = 1
	}
	ret := make([][]Split, n)
	var tmp []byte
	for i := range splits {
		tmp = append(tmp[:0], splits[i].Path...)
		tmp = binary.LittleEndian.AppendUint64(tmp, uint64(splits[i].Start))
		h := siphash.Hash(k0, k1, tmp)
		j := int(h / (clamp / uint64(n)))
		if j >= n {
			// hashes at the very top of the range
			// round past the last group
			j = n - 1
		}
		ret[j] = append(ret[j], splits[i])
	}
	return ret
}
