// Package storetest connects store.Managers to in-process miniredis servers
// for package tests.
package storetest

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ephemera/pkg/store"
)

// Config returns a fast-retrying Config pointed at mr.
func Config(mr *miniredis.Miniredis) store.Config {
	host, port, err := net.SplitHostPort(mr.Addr())
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	p, err := strconv.Atoi(port)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := store.DefaultConfig()
	cfg.Host = host
	cfg.Port = p
	cfg.RetryBackoff = time.Millisecond
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.SocketTimeout = 200 * time.Millisecond
	cfg.HealthCheckInterval = time.Hour
	cfg.ReconnectInterval = time.Millisecond
	return cfg
}

// Start runs a miniredis server and a Manager connected to it. Both are torn
// down when the current test finishes.
func Start() (*miniredis.Miniredis, *store.Manager) {
	mr := miniredis.RunT(GinkgoT())
	m, err := store.Connect(context.Background(), Config(mr))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	DeferCleanup(m.Close)
	return mr, m
}
