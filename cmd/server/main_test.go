package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRoot_RegistersServeCommand(t *testing.T) {
	root := buildRoot()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.Equal(t, "serve", serve.Name())
}

func TestBuildRoot_ServeFlagsRegistered(t *testing.T) {
	root := buildRoot()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	require.NotNil(t, serve.Flags().Lookup("port"))
	require.NotNil(t, serve.Flags().Lookup("dev"))
	require.NotNil(t, serve.Flags().Lookup("public-url"))
	require.NotNil(t, root.PersistentFlags().Lookup("binary"))
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestNewLogLevel(t *testing.T) {
	require.NotEqual(t, newLogLevel(true), newLogLevel(false))
}
