package store_test

import (
	"testing"

	"github.com/John-Robertt/MMC/internal/store"
	"github.com/John-Robertt/MMC/internal/store/storetest"
)

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}
