package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("missing ports return error", func(t *testing.T) {
		server, err := NewServer(&Ports{}, "1.0.0")
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingRetrievalService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		ports := &Ports{
			Retrieval: &mockRetrievalService{},
			Graphs:    &mockGraphService{},
		}
		server, err := NewServer(ports, "")
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.Handler())
	})
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ports Ports
		want  error
	}{
		{"empty", Ports{}, ErrMissingRetrievalService},
		{"no graphs", Ports{Retrieval: &mockRetrievalService{}}, ErrMissingGraphService},
		{"search optional", Ports{Retrieval: &mockRetrievalService{}, Graphs: &mockGraphService{}}, nil},
		{"all ports", Ports{
			Retrieval: &mockRetrievalService{},
			Search:    &mockVectorSearchService{},
			Graphs:    &mockGraphService{},
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
