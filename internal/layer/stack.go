/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package layer

import (
	"sort"
)

// Stack is an unordered collection of layers; paint order comes from ZIndex alone.
// Operations never mutate their input. A layer whose attributes change is
// replaced by a shallow copy sharing the same scene node. When an operation
// has nothing to do it returns the input slice itself.
type Stack []Layer

// Add appends l. Other layers keep their z-index.
func Add(s Stack, l Layer) Stack {
	if l == nil {
		return s
	}
	out := make(Stack, 0, len(s)+1)
	out = append(out, s...)
	return append(out, l)
}

// Remove drops the layer with the given id.
func Remove(s Stack, id ID) Stack {
	i := indexOf(s, id)
	if i < 0 {
		return s
	}
	out := make(Stack, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// Find returns the layer with the given id. An unset id is never found.
func Find(s Stack, id ID) (Layer, bool) {
	i := indexOf(s, id)
	if i < 0 {
		return nil, false
	}
	return s[i], true
}

func indexOf(s Stack, id ID) int {
	if id == "" {
		return -1
	}
	for i, l := range s {
		if l.Base().ID == id {
			return i
		}
	}
	return -1
}

// Sort returns the layers ordered by ascending z-index. Ties keep their relative order.
func Sort(s Stack) Stack {
	out := append(Stack(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Base().ZIndex < out[j].Base().ZIndex })
	return out
}

// Move places the layer at ordinal k counted from the back and renumbers the
// whole stack 0..n-1 so paint order has no gaps or ties. Out-of-range k is clamped.
func Move(s Stack, id ID, k int) Stack {
	sorted := Sort(s)
	from := indexOf(sorted, id)
	if from < 0 {
		return s
	}
	if k < 0 {
		k = 0
	}
	if k > len(sorted)-1 {
		k = len(sorted) - 1
	}
	target := sorted[from]
	order := make(Stack, 0, len(sorted))
	order = append(order, sorted[:from]...)
	order = append(order, sorted[from+1:]...)
	order = append(order[:k], append(Stack{target}, order[k:]...)...)
	return renumber(s, order)
}

// renumber assigns z = position in order and reports s unchanged when nothing moved.
func renumber(s Stack, order Stack) Stack {
	changed := false
	out := make(Stack, len(order))
	for i, l := range order {
		a := l.Base()
		if a.ZIndex != i {
			a.ZIndex = i
			l = l.withAttrs(a)
			changed = true
		}
		out[i] = l
	}
	if !changed {
		return s
	}
	return out
}

// ordinal returns the back-to-front position of id and the sorted stack.
func ordinal(s Stack, id ID) (int, Stack) {
	sorted := Sort(s)
	return indexOf(sorted, id), sorted
}

// floor is the lowest ordinal the layer at position p may take: backgrounds
// may go to 0, everything else stays above the backgrounds beneath it.
func floor(sorted Stack, p int) int {
	if _, ok := sorted[p].(*Background); ok {
		return 0
	}
	n := 0
	for _, l := range sorted[:p] {
		if _, ok := l.(*Background); ok {
			n++
		}
	}
	return n
}

// Forward swaps the layer with its neighbour in front.
func Forward(s Stack, id ID) Stack {
	p, sorted := ordinal(s, id)
	if p < 0 || p == len(sorted)-1 {
		return s
	}
	return Move(s, id, p+1)
}

// Backward swaps the layer with its neighbour behind, never passing a background.
func Backward(s Stack, id ID) Stack {
	p, sorted := ordinal(s, id)
	if p < 0 || p-1 < floor(sorted, p) {
		return s
	}
	return Move(s, id, p-1)
}

// ToFront lifts the layer above the current maximum z-index.
func ToFront(s Stack, id ID) Stack {
	i := indexOf(s, id)
	if i < 0 {
		return s
	}
	a := s[i].Base()
	top := true
	for j, l := range s {
		if j != i && l.Base().ZIndex >= a.ZIndex {
			top = false
			break
		}
	}
	if top {
		return s
	}
	hi, _ := MaxZ(s)
	a.ZIndex = hi + 1
	return replace(s, i, s[i].withAttrs(a))
}

// ToBack sends the layer to the back, just above the background layers.
// A background goes to the very back.
func ToBack(s Stack, id ID) Stack {
	p, sorted := ordinal(s, id)
	if p < 0 {
		return s
	}
	return Move(s, id, floor(sorted, p))
}

// Duplicate copies the layer with a fresh id and a cloned scene node and
// places the copy directly above the original.
func Duplicate(s Stack, id ID) (Stack, Layer, error) {
	i := indexOf(s, id)
	if i < 0 {
		return s, nil, nil
	}
	src := s[i].Base()
	a := src
	a.ID = NewID()
	a.Name = src.Name + " copy"
	a.ZIndex = src.ZIndex + 1
	dup, err := s[i].duplicate(a)
	if err != nil {
		return s, nil, err
	}
	out := make(Stack, 0, len(s)+1)
	for j, l := range s {
		if b := l.Base(); j != i && b.ZIndex > src.ZIndex {
			b.ZIndex++
			l = l.withAttrs(b)
		}
		out = append(out, l)
		if j == i {
			out = append(out, dup)
		}
	}
	return out, dup, nil
}

// Update applies fn to the layer's attributes. The id cannot be changed.
func Update(s Stack, id ID, fn func(Attrs) Attrs) Stack {
	i := indexOf(s, id)
	if i < 0 || fn == nil {
		return s
	}
	old := s[i].Base()
	a := fn(old)
	a.ID = old.ID
	if a == old {
		return s
	}
	return replace(s, i, s[i].withAttrs(a))
}

// SetClip toggles clip-to-below on an adjustment layer. Other variants are left alone.
func SetClip(s Stack, id ID, clip bool) Stack {
	i := indexOf(s, id)
	if i < 0 {
		return s
	}
	adj, ok := s[i].(*Adjustment)
	if !ok || adj.ClipToBelow == clip {
		return s
	}
	c := *adj
	c.ClipToBelow = clip
	return replace(s, i, &c)
}

func replace(s Stack, i int, l Layer) Stack {
	out := append(Stack(nil), s...)
	out[i] = l
	return out
}

// MaxZ returns the highest z-index; ok is false for an empty stack.
func MaxZ(s Stack) (z int, ok bool) {
	for i, l := range s {
		if b := l.Base().ZIndex; i == 0 || b > z {
			z = b
		}
	}
	return z, len(s) > 0
}

// MinZ returns the lowest z-index; ok is false for an empty stack.
func MinZ(s Stack) (z int, ok bool) {
	for i, l := range s {
		if b := l.Base().ZIndex; i == 0 || b < z {
			z = b
		}
	}
	return z, len(s) > 0
}

// NextZ is the z-index a newly added front-most layer should take.
func NextZ(s Stack) int {
	hi, ok := MaxZ(s)
	if !ok {
		return 0
	}
	return hi + 1
}

// ActiveBackground returns the bottom-most background layer.
func ActiveBackground(s Stack) (*Background, bool) {
	for _, l := range Sort(s) {
		if bg, ok := l.(*Background); ok {
			return bg, true
		}
	}
	return nil, false
}

// ReplaceBackground removes every background layer and inserts bg at the
// z-index of the active one, or below everything when there was none.
// The removed layers are returned so the caller can release their nodes.
func ReplaceBackground(s Stack, bg *Background) (Stack, []Layer) {
	if bg == nil {
		return s, nil
	}
	a := bg.Base()
	if cur, ok := ActiveBackground(s); ok {
		a.ZIndex = cur.ZIndex
	} else if lo, ok := MinZ(s); ok {
		a.ZIndex = lo - 1
	} else {
		a.ZIndex = 0
	}
	var removed []Layer
	out := make(Stack, 0, len(s)+1)
	for _, l := range s {
		if _, ok := l.(*Background); ok {
			removed = append(removed, l)
			continue
		}
		out = append(out, l)
	}
	return append(out, bg.withAttrs(a)), removed
}

// IDs lists layer ids in stack order.
func IDs(s Stack) []ID {
	out := make([]ID, len(s))
	for i, l := range s {
		out[i] = l.Base().ID
	}
	return out
}
