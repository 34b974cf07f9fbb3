// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testfixture writes small multi-module source trees for tests.
package testfixture

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree writes files (relative path -> content) under a fresh temp
// directory and returns the directory.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// SampleProject returns a three-module tree: order, product and user.
//
// order.application.OrderCommand imports product.expose.FindProductApi and
// calls client.post("/api/orders", ...) from createOrder.
// order.infra.OrderRepository concatenates API_BASE + "/api/orders/save".
// user has a directory but no cross-module references.
func SampleProject() map[string]string {
	return map[string]string{
		"order/application/OrderCommand.java": `package order.application;

import product.expose.FindProductApi;
import order.infra.Client;
import order.infra.OrderRepository;

public class OrderCommand {
    private FindProductApi productApi;
    private Client client;
    private OrderRepository orderRepository;

    public void createOrder() {
        // Create order using HTTP client
        client.post("/api/orders", "order data");
    }

    public void saveOrder(String orderData) {
        orderRepository.save(orderData);
    }
}
`,
		"order/infra/Client.java": `package order.infra;

public class Client {
    public void post(String url, String body) {
    }

    public String get(String url) {
        return "";
    }
}
`,
		"order/infra/OrderRepository.java": `package order.infra;

public class OrderRepository {
    private static final String API_BASE = "https://orders.example.com";
    private Client client;

    public void save(String orderData) {
        // Save order via HTTP client
        client.post(API_BASE + "/api/orders/save", orderData);
    }
}
`,
		"product/expose/FindProductApi.java": `package product.expose;

public interface FindProductApi {
    ProductDto find(String id);
}
`,
		"product/expose/ProductDto.java": `package product.expose;

public class ProductDto {
    private String id;
}
`,
		"product/application/ProductCommand.java": `package product.application;

import product.infra.ProductClient;

public class ProductCommand {
    private static final String BASE_URL = "https://api.example.com";
    private static final String PRODUCT_PATH = "/api/products";
    private ProductClient client;

    public void createProduct() {
        client.post(BASE_URL + PRODUCT_PATH, "product data");
    }

    public void updateProduct() {
        client.post(BASE_URL + PRODUCT_PATH + "/update", "updated product");
    }

    public void deleteProduct() {
        String endpoint = "/delete";
        client.post(BASE_URL + PRODUCT_PATH + endpoint, "delete data");
    }
}
`,
		"product/infra/ProductClient.java": `package product.infra;

public class ProductClient {
    public void post(String url, String body) {
    }
}
`,
		"product/infra/ProductStockRepository.java": `package product.infra;

public class ProductStockRepository {
}
`,
		"user/service/UserService.java": `package user.service;

public class UserService {
    public void processUser(String id) {
    }
}
`,
		"README.md": "not a source file\n",
		"order/NoPackage.java": "public class NoPackage {}\n",
	}
}
