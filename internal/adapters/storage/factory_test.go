package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFactory(t *testing.T) {
	factory := DefaultFactory()
	ctx := context.Background()

	t.Run("CreateMemoryStore", func(t *testing.T) {
		store, err := factory.Create(&StoreConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("Failed to create memory store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*RetryingStore); !ok {
			t.Errorf("Expected store wrapped with retry logic, got %T", store)
		}

		if err := store.Set(ctx, "franchises", "f1", map[string]string{"name": "Repaart Madrid"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := store.Get(ctx, "franchises", "f1"); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	})

	t.Run("CreateLocalStore", func(t *testing.T) {
		tempDir := t.TempDir()

		store, err := factory.Create(&StoreConfig{Type: "LOCAL", BasePath: tempDir})
		if err != nil {
			t.Fatalf("Failed to create local store: %v", err)
		}
		defer store.Close()

		if err := store.Set(ctx, "franchises", "f1", map[string]string{"name": "Repaart Madrid"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		// Verify file exists on disk
		filePath := filepath.Join(tempDir, "franchises", "f1.json")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Error("File should exist on disk")
		}
	})

	t.Run("NoRetryConfig", func(t *testing.T) {
		store, err := NewFactory(nil).Create(&StoreConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("Failed to create memory store: %v", err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("Expected bare memory store, got %T", store)
		}
	})

	t.Run("UnsupportedStorageType", func(t *testing.T) {
		if _, err := factory.Create(&StoreConfig{Type: "unsupported"}); err == nil {
			t.Error("Should fail for unsupported storage type")
		}
	})

	t.Run("NilConfig", func(t *testing.T) {
		if _, err := factory.Create(nil); err == nil {
			t.Error("Should fail for nil config")
		}
	})
}

func TestMustCreate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustCreate should panic for unsupported type")
		}
	}()
	MustCreate(&StoreConfig{Type: "unsupported"})
}
