// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstArgument(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		pattern string
		want    string
		ok      bool
	}{
		{"literal", `client.post("/api/orders", "order data");`, "client.post", `"/api/orders"`, true},
		{"concatenation", `client.post(API_BASE + "/save", data);`, "client.post", `API_BASE + "/save"`, true},
		{"single argument", `client.post("/only");`, "client.post", `"/only"`, true},
		{"comma inside literal", `client.post("/a,b", x);`, "client.post", `"/a,b"`, true},
		{"nested call", `client.post(url(a, b), x);`, "client.post", `url(a, b)`, true},
		{"case insensitive", `CLIENT.POST("/x")`, "client.post", `"/x"`, true},
		{"open paren after generic", `client.<Foo>post("/g")`, "client.", `"/g"`, true},
		{"runs past line end", `client.post(BASE +`, "client.post", `BASE +`, true},
		{"pattern with paren", `client.post("/api/orders", body);`, "client.post(", `"/api/orders"`, true},
		{"pattern with paren nested call", `client.post(buildUrl(id), body);`, "client.post(", `buildUrl(id)`, true},
		{"pattern with paren empty call", `client.post();`, "client.post(", "", false},
		{"no parenthesis", `client.post;`, "client.post", "", false},
		{"empty call", `client.post();`, "client.post", "", false},
		{"pattern absent", `http.get("/x")`, "client.post", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstArgument(tt.line, tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveArgument(t *testing.T) {
	decls := Declarations{
		"API_BASE":     "https://orders.example.com",
		"PRODUCT_PATH": "/api/products",
	}
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"literal", `"/api/orders"`, "/api/orders"},
		{"constant plus literal", `API_BASE + "/api/orders/save"`, "https://orders.example.com/api/orders/save"},
		{"two constants", `API_BASE+PRODUCT_PATH`, "https://orders.example.com/api/products"},
		{"this qualifier", `this.API_BASE + "/x"`, "https://orders.example.com/x"},
		{"unresolved identifier", `base + "/x"`, "[base]/x"},
		{"bare identifier", `PRODUCT_PATH`, "/api/products"},
		{"method call operand", `build(a + b) + "/x"`, "[build(a + b)]/x"},
		{"plus inside literal", `"/a+b" + API_BASE`, "/a+bhttps://orders.example.com"},
		{"two adjacent literals", `"a" + "b"`, "ab"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveArgument(tt.expr, decls))
		})
	}
}

func TestParseDeclarations(t *testing.T) {
	text := `package p;
public class C {
    private static final String API_BASE = "https://orders.example.com";
    static final String PATH="/p";
    private String notLiteral = build();
    private int count = 3;

    void m() {
        String endpoint = "/delete";
        String API_BASE = "/shadow";
        String escaped = "a\"b";
    }
}`
	decls := ParseDeclarations(text)
	assert.Equal(t, Declarations{
		"API_BASE": "https://orders.example.com",
		"PATH":     "/p",
		"endpoint": "/delete",
		"escaped":  `a\"b`,
	}, decls)
}

func TestParseDeclarations_SkipsComments(t *testing.T) {
	text := `package p;
public class C {
    // private static final String BASE = "http://old";
    /* static final String OTHER = "/stale";
       static final String MORE = "/stale"; */
    private static final String BASE = "http://live"; // was "http://old"
    static final String URL = "http://host/api";
}`
	assert.Equal(t, Declarations{
		"BASE": "http://live",
		"URL":  "http://host/api",
	}, ParseDeclarations(text))
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "a // b\nc", "a \nc"},
		{"block comment", "a /* b */c", "a  c"},
		{"multi-line block keeps newlines", "a /* b\n */c", "a \n c"},
		{"slashes inside literal", `x = "http://h"; // y`, `x = "http://h"; `},
		{"char literal", `c = '/'; d = "/*";`, `c = '/'; d = "/*";`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripComments(tt.in))
		})
	}
}

func TestIndexFold(t *testing.T) {
	assert.Equal(t, 4, indexFold("abc Client.Post(", "client.post"))
	assert.Equal(t, -1, indexFold("abc", "abcd"))
	assert.Equal(t, 0, indexFold("abc", ""))
}
