package memstore

import (
	"testing"

	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return New(docstore.Options{SubscribeBuffer: 4})
	})
}
