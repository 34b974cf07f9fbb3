// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(module, class, method string, line int) TraceMatch {
	return TraceMatch{
		ClassChain:   []string{class},
		MatchedClass: class,
		LineNumber:   line,
		MethodName:   method,
		Module:       module,
	}
}

func TestAggregator_Empty(t *testing.T) {
	a := NewAggregator()
	assert.False(t, a.HasMatches())
	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.Matches())
	assert.Empty(t, a.ByModule())
}

func TestAggregator_DeduplicatesByClassAndMethod(t *testing.T) {
	a := NewAggregator()

	first := match("order", "order.A", "create", 10)
	first.ResolvedArgument = "/first"
	second := match("order", "order.A", "create", 20)
	second.ResolvedArgument = "/second"

	assert.True(t, a.Add(first))
	assert.False(t, a.Add(second))
	assert.True(t, a.Add(match("order", "order.A", "update", 30)))
	assert.True(t, a.Add(match("order", "order.B", "create", 5)))

	require.Equal(t, 3, a.Len())
	assert.Equal(t, "/first", a.Matches()[0].ResolvedArgument)
	assert.True(t, a.Contains("order.A", "update"))
	assert.False(t, a.Contains("order.A", "delete"))
}

func TestAggregator_MatchesIsACopy(t *testing.T) {
	a := NewAggregator()
	chain := []string{"x.Start", "x.End"}
	m := match("x", "x.End", "run", 1)
	m.ClassChain = chain
	a.Add(m)

	chain[0] = "mutated"
	got := a.Matches()
	got[0].MatchedClass = "mutated"

	again := a.Matches()
	assert.Equal(t, "x.Start", again[0].ClassChain[0])
	assert.Equal(t, "x.End", again[0].MatchedClass)
}

func TestAggregator_InsertionOrder(t *testing.T) {
	a := NewAggregator()
	a.Add(match("z", "z.Z", "m", 1))
	a.Add(match("a", "a.A", "m", 1))

	got := a.Matches()
	assert.Equal(t, "z.Z", got[0].MatchedClass)
	assert.Equal(t, "a.A", got[1].MatchedClass)
}

func TestAggregator_ByModule(t *testing.T) {
	a := NewAggregator()
	a.Add(match("product", "product.P", "delete", 30))
	a.Add(match("order", "order.R", "save", 9))
	a.Add(match("product", "product.P", "create", 10))
	a.Add(match("order", "order.C", "createOrder", 14))

	groups := a.ByModule()
	require.Len(t, groups, 2)
	assert.Equal(t, "order", groups[0].Module)
	assert.Equal(t, "product", groups[1].Module)

	assert.Equal(t, "order.C", groups[0].Matches[0].MatchedClass)
	assert.Equal(t, "order.R", groups[0].Matches[1].MatchedClass)
	assert.Equal(t, "create", groups[1].Matches[0].MethodName)
	assert.Equal(t, "delete", groups[1].Matches[1].MethodName)

	// Grouping does not reorder the underlying insertion order.
	assert.Equal(t, "product.P", a.Matches()[0].MatchedClass)
}

func TestTraceMatch_Helpers(t *testing.T) {
	m := match("order", "order.application.OrderCommand", "createOrder", 14)
	assert.Equal(t, "OrderCommand", m.SimpleClassName())
	assert.False(t, m.HasArgument())
	m.RawArgument = `"/api/orders"`
	m.ResolvedArgument = "/api/orders"
	assert.True(t, m.HasArgument())
	assert.Equal(t, "/api/orders", m.DisplayArgument())

	empty := match("order", "order.A", "ping", 3)
	empty.RawArgument = `""`
	assert.True(t, empty.HasArgument())
	assert.Equal(t, `""`, empty.DisplayArgument())
	assert.Equal(t, Key{Class: "order.application.OrderCommand", Method: "createOrder"}, m.Key())

	assert.Equal(t, "Bare", TraceMatch{MatchedClass: "Bare"}.SimpleClassName())
}
