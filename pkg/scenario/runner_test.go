//
//  Copyright © Manetu Inc. All rights reserved.
//

package scenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/manetu/sqlsecurity/pkg/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTearsDownAfterFailedSetup(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"bulk rejected"}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFixture(cluster.NewClient(cluster.WithURL(srv.URL)), filepath.Join(t.TempDir(), "access.log"))
	results, err := NewRunner(f, DefaultCatalog()).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index fixture documents")
	assert.Nil(t, results)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/*"}, deleted)
}

func TestRunNoMatchingScenarios(t *testing.T) {
	f := NewFixture(cluster.NewClient(cluster.WithURL("http://127.0.0.1:1")), "unused")
	_, err := NewRunner(f, DefaultCatalog()).Run(context.Background(), []string{"no-such-scenario"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenarios match")
}
