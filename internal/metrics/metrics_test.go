// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveCheckout("a:27017", true)
	r.ObserveCheckout("a:27017", true)
	r.ObserveCheckout("a:27017", false)
	r.ObserveDial("a:27017", 3*time.Millisecond)
	r.SetOpenConnections("a:27017", 2)
	r.ObserveRelease("a:27017")
	r.ObserveRefresh("rs0", false)
	r.ObserveSweep("rs0", true)
	r.ObserveSelection("read", true)

	require.Equal(t, 2.0, testutil.ToFloat64(r.PoolCheckoutsTotal.WithLabelValues("a:27017", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.PoolCheckoutsTotal.WithLabelValues("a:27017", "failure")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.PoolOpenConnections.WithLabelValues("a:27017")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.PoolReleasesTotal.WithLabelValues("a:27017")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.RefreshTotal.WithLabelValues("rs0", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.SweepsTotal.WithLabelValues("rs0", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.TargetSelectionTotal.WithLabelValues("read", "success")))
	require.Equal(t, 1, testutil.CollectAndCount(r.PoolDialDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.ObserveCheckout("a", true)
		r.ObserveDial("a", time.Second)
		r.SetOpenConnections("a", 1)
		r.ObserveRelease("a")
		r.ObserveRefresh("s", true)
		r.ObserveSweep("s", true)
		r.ObserveSelection("write", false)
	})
}
